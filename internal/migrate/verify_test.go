package migrate

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/identity"
)

func TestVerifyAfterMigration(t *testing.T) {
	env := newMigrationEnv(t, feedRow(42)+feedRow(43), identity.Config{})
	env.addRecord(t, 0, 42, 4, "h1")
	env.addRecord(t, 0, 42, 7, "b1")
	env.addRecord(t, 0, 43, 4, "h2")

	v, err := NewVerifier(shardZero(), env.legacy, env.target, env.resolver, env.log)
	require.NoError(t, err)

	before, err := v.Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, before, 2)
	for i := range before {
		assert.False(t, before[i].Match())
		assert.Zero(t, before[i].Target)
	}

	_, err = env.run(t, shardZero(), WriterConfig{})
	require.NoError(t, err)

	after, err := v.Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, after, 2)
	for i := range after {
		assert.True(t, after[i].Match(), "legacy id %d", after[i].LegacyID)
	}
	assert.Equal(t, int64(2), after[0].Legacy)
	assert.Equal(t, int64(2), after[0].Summaries)

	var out bytes.Buffer
	assert.Zero(t, PrintChecks(&out, after))
	assert.Contains(t, out.String(), "2 user(s) checked, 0 mismatch(es)")
}

func TestVerifyUnresolvedUser(t *testing.T) {
	env := newMigrationEnv(t, feedRow(42), identity.Config{})
	env.addRecord(t, 0, 42, 4, "h1")
	env.addRecord(t, 0, 99, 4, "orphan")

	v, err := NewVerifier(shardZero(), env.legacy, env.target, env.resolver, env.log)
	require.NoError(t, err)

	checks, err := v.Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 2)

	var orphan *UserCheck
	for i := range checks {
		if checks[i].LegacyID == 99 {
			orphan = &checks[i]
		}
	}
	require.NotNil(t, orphan)
	require.Error(t, orphan.Err)
	assert.False(t, orphan.Match())

	var out bytes.Buffer
	assert.Equal(t, 2, PrintChecks(&out, checks))
}

func TestVerifyExplicitUsers(t *testing.T) {
	env := newMigrationEnv(t, feedRow(42)+feedRow(43), identity.Config{})
	env.addRecord(t, 0, 42, 4, "h1")
	env.addRecord(t, 0, 43, 4, "h2")

	cfg := shardZero()
	cfg.Users = []int64{43}
	v, err := NewVerifier(cfg, env.legacy, env.target, env.resolver, env.log)
	require.NoError(t, err)

	checks, err := v.Verify(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, int64(43), checks[0].LegacyID)
	assert.Equal(t, int64(1), checks[0].Legacy)
}

func TestVerifyCanceled(t *testing.T) {
	env := newMigrationEnv(t, feedRow(42), identity.Config{})
	env.addRecord(t, 0, 42, 4, "h1")

	v, err := NewVerifier(shardZero(), env.legacy, env.target, env.resolver, env.log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.Verify(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
