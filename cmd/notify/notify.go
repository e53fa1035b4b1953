package notify

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/syncmigrate/internal/notification"
	"github.com/tphakala/syncmigrate/internal/runtime"
)

// Command returns a cobra command that sends a test notification to the
// configured services
func Command(rt *runtime.Context) *cobra.Command {
	var (
		title   string
		message string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification",
		Long: `Send a test notification through the services a migration run reports to.

Examples:
  # Use the URLs from the config file
  syncmigrate notify --config migrate.yaml

  # Try a service directly
  syncmigrate notify --notify-url "generic://hooks.example.com/sync" --message "hello"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := rt.Settings
			if len(settings.Notification.URLs) == 0 {
				return errors.New("no notification URLs configured")
			}

			n, err := notification.New(settings.Notification.URLs, settings.Notification.Timeout, rt.Logger("notification"))
			if err != nil {
				return err
			}
			if err := n.Send(cmd.Context(), title, message); err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Notification sent to %d service(s)\n", len(settings.Notification.URLs))
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "Sync migration test", "Notification title")
	cmd.Flags().StringVar(&message, "message", "Test notification from syncmigrate", "Notification message")
	cmd.Flags().StringSlice("notify-url", nil, "Send to this shoutrrr URL instead of the configured ones (repeatable)")
	return cmd
}
