// Package verify provides the verify command
package verify

import (
	"fmt"

	"github.com/spf13/cobra"
	cmdmigrate "github.com/tphakala/syncmigrate/cmd/migrate"
	"github.com/tphakala/syncmigrate/internal/identity"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/migrate"
	"github.com/tphakala/syncmigrate/internal/runtime"
)

// Command creates and returns the verify command
func Command(rt *runtime.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare legacy and target record counts per user",
		Long: `Verify counts every selected user's unexpired legacy records and the
records stored for the user's identity in the target store. Users with
truncated collections or records in unknown collections are expected to
differ.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings := rt.Settings

			cfg, err := cmdmigrate.BuildConfig(&settings.Migration)
			if err != nil {
				return err
			}
			if settings.Identity.Anonymize {
				return fmt.Errorf("verify needs the identity feed; anonymized identities are not stored")
			}

			resolver := identity.NewResolver(identity.Config{Only: cfg.Users}, rt.Logger("identity"))
			if err := resolver.LoadFeed(settings.Identity.UsersFile); err != nil {
				return err
			}

			stores, err := rt.OpenStores(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := stores.Close(); err != nil {
					rt.Logger("main").Warn("failed to close stores", logger.Error(err))
				}
			}()

			verifier, err := migrate.NewVerifier(cfg, stores.Legacy, stores.Target, resolver, rt.Logger("verify"))
			if err != nil {
				return err
			}
			checks, err := verifier.Verify(ctx)
			mismatches := migrate.PrintChecks(cmd.OutOrStdout(), checks)
			if err != nil {
				return err
			}
			if mismatches > 0 {
				return fmt.Errorf("%d user(s) do not match", mismatches)
			}
			return nil
		},
	}

	setupFlags(cmd)
	return cmd
}

// setupFlags configures the user selection flags shared with migrate.
func setupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("start-bso", 0, "First legacy shard to check")
	flags.Int("end-bso", 19, "Last legacy shard to check")
	flags.String("user", "", "Check only these users: shard:id[,id...]")
	flags.String("user-range", "", "Page through shard users: offset:limit")
}
