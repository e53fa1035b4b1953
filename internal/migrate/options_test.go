package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/syncmigrate/internal/datastore/entities"
	"github.com/tphakala/syncmigrate/internal/errors"
)

func TestParseUserSelection(t *testing.T) {
	sel, err := ParseUserSelection("3:42, 43,,44")
	require.NoError(t, err)
	assert.Equal(t, UserSelection{Shard: 3, Users: []int64{42, 43, 44}}, sel)

	for _, bad := range []string{"42", "x:1", "20:1", "-1:1", "3:", "3:a,b"} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseUserSelection(bad)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestParseUserRange(t *testing.T) {
	off, lim, err := ParseUserRange("100:50")
	require.NoError(t, err)
	assert.Equal(t, 100, off)
	assert.Equal(t, 50, lim)

	off, lim, err = ParseUserRange("10:")
	require.NoError(t, err)
	assert.Equal(t, 10, off)
	assert.Zero(t, lim)

	for _, bad := range []string{"10", "a:1", "1:b", "-1:5"} {
		_, _, err := ParseUserRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTruncation(t *testing.T) {
	tr, err := ParseTruncation("history:1")
	require.NoError(t, err)
	assert.Equal(t, &Truncation{Collection: "history", Max: 1}, tr)
	assert.Equal(t, "history:1", tr.String())

	tr, err = ParseTruncation("4:10")
	require.NoError(t, err)
	assert.True(t, tr.ByLegacyID)
	assert.Equal(t, 4, tr.LegacyID)

	for _, bad := range []string{"history", ":3", "history:x", "history:-1"} {
		_, err := ParseTruncation(bad)
		assert.Error(t, err, bad)
	}
}

func TestTruncationApply(t *testing.T) {
	records := []entities.DataRecord{
		{CollectionName: "history", CollectionID: 4, ID: "h1"},
		{CollectionName: "bookmarks", CollectionID: 7, ID: "b1"},
		{CollectionName: "history", CollectionID: 4, ID: "h2"},
		{CollectionName: "history", CollectionID: 4, ID: "h3"},
		{CollectionName: "bookmarks", CollectionID: 7, ID: "b2"},
	}

	byName := &Truncation{Collection: "history", Max: 1}
	kept, dropped := byName.Apply(records)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"h1", "b1", "b2"}, recordIDs(kept))

	byID := &Truncation{LegacyID: 7, ByLegacyID: true, Max: 0}
	kept, dropped = byID.Apply(records)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"h1", "h2", "h3"}, recordIDs(kept))

	var none *Truncation
	kept, dropped = none.Apply(records)
	assert.Zero(t, dropped)
	assert.Len(t, kept, len(records))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0, cfg.StartShard)
	assert.Equal(t, 19, cfg.EndShard)

	cfg = Config{StartShard: 2, EndShard: 2, Users: []int64{1}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize, "missing chunk size gets the default")

	tests := []struct {
		name string
		cfg  Config
	}{
		{"end beyond shards", Config{StartShard: 0, EndShard: 20}},
		{"negative start", Config{StartShard: -1, EndShard: 3}},
		{"reversed", Config{StartShard: 5, EndShard: 4}},
		{"users across shards", Config{StartShard: 0, EndShard: 1, Users: []int64{1}}},
		{"negative offset", Config{Offset: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func recordIDs(records []entities.DataRecord) []string {
	ids := make([]string, 0, len(records))
	for i := range records {
		ids = append(ids, records[i].ID)
	}
	return ids
}
