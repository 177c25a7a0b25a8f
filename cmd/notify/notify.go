// Package notify sends a test notification through the configured providers.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nongbuhae/cropdoc/internal/conf"
	"github.com/nongbuhae/cropdoc/internal/notification"
)

// Command returns a cobra command that sends a test notification via the notification service
func Command(settings *conf.Settings) *cobra.Command {
	var (
		typ      string
		title    string
		message  string
		wait     time.Duration
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test notification to the configured push services and MQTT topic",
		Long: `Send a test notification through the notification dispatcher.

Examples:
  # Basic notification
  cropdoc notify --title="Test" --message="Hello"

  # Diagnosis-shaped notification with metadata
  cropdoc notify --type=diagnosis --metadata="crop=tomato" --metadata="confidence=87"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ntype notification.Type
			switch typ {
			case "system":
				ntype = notification.TypeSystem
			case "diagnosis":
				ntype = notification.TypeDiagnosis
			default:
				return fmt.Errorf("invalid type: %s", typ)
			}

			n := notification.NewNotification(ntype, title, message)
			for _, kv := range metadata {
				key, value, err := ParseMetadata(kv)
				if err != nil {
					return err
				}
				n.WithMetadata(key, value)
			}

			dispatcher, err := notification.NewDispatcherFromConfig(&settings.Notification, nil)
			if err != nil {
				return fmt.Errorf("failed to create notification dispatcher: %w", err)
			}
			providers := dispatcher.Providers()
			if len(providers) == 0 {
				return fmt.Errorf("no notification provider is enabled")
			}

			dispatcher.Notify(n)

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			if err := dispatcher.Close(ctx); err != nil {
				return fmt.Errorf("notification not delivered within %s: %w", wait, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent: id=%s type=%s providers=%s",
				n.ID, n.Type, strings.Join(providers, ","))
			if len(n.Metadata) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " metadata=%d_keys", len(n.Metadata))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "system", "Notification type: system|diagnosis")
	cmd.Flags().StringVar(&title, "title", "cropdoc test", "Notification title")
	cmd.Flags().StringVar(&message, "message", "This is a test notification from cropdoc", "Notification message")
	cmd.Flags().DurationVar(&wait, "wait", 15*time.Second, "How long to wait for delivery")
	cmd.Flags().StringArrayVar(&metadata, "metadata", nil, "Metadata as key=value, repeatable")

	return cmd
}

// ParseMetadata splits key=value. Numbers and booleans are converted, any
// other value stays a string.
func ParseMetadata(kv string) (string, any, error) {
	key, value, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
	}
	value = strings.TrimSpace(value)

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return key, f, nil
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return key, b, nil
	}
	return key, value, nil
}
