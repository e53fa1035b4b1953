// Package catalog provides the catalog command
package catalog

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	catalogpkg "github.com/tphakala/syncmigrate/internal/catalog"
	"github.com/tphakala/syncmigrate/internal/logger"
	"github.com/tphakala/syncmigrate/internal/runtime"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
)

// Command creates and returns the catalog command
func Command(rt *runtime.Context) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the collection catalog a migration would use",
		Long: `Catalog merges the built-in collections, the target collections table and
the collections referenced by legacy users, then prints the result. Names
only the legacy store knows are added to the target table, exactly as a
migration run would add them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != FormatTable && format != FormatYAML {
				return fmt.Errorf("invalid format: %s", format)
			}

			stores, err := rt.OpenStores(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := stores.Close(); err != nil {
					rt.Logger("main").Warn("failed to close stores", logger.Error(err))
				}
			}()

			cat := catalogpkg.New(stores.Target, stores.Legacy, rt.Logger("catalog"))
			if err := cat.Initialize(cmd.Context()); err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), cat.Entries(), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "Output format: table, yaml")
	return cmd
}

// Print writes entries in the given format.
func Print(w io.Writer, entries []catalogpkg.Entry, format string) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode catalog: %w", err)
		}
		return enc.Close()
	}

	_, _ = fmt.Fprintf(w, "%-20s %6s %10s %-8s\n", "Collection", "ID", "Legacy ID", "Source")
	for _, e := range entries {
		legacyID := "-"
		if e.LegacyID != 0 {
			legacyID = fmt.Sprint(e.LegacyID)
		}
		_, _ = fmt.Fprintf(w, "%-20s %6d %10s %-8s\n", e.Name, e.ID, legacyID, e.Source)
	}
	return nil
}
