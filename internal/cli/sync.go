package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
)

// NewSyncCmd replays attempts queued while the sink was unreachable.
func NewSyncCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued quiz attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runSync(cmd.Context(), *configPath, userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered=%d rejected=%d remaining=%d\n",
				report.Delivered, report.Rejected, report.Remaining)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only sync this user's queue")
	return cmd
}

func runSync(ctx context.Context, configPath, userID string) (app.FlushReport, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return app.FlushReport{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return app.FlushReport{}, err
	}
	defer b.Close()

	service := b.service(ctx)
	if userID != "" {
		return service.FlushOffline(ctx, userID)
	}
	return service.FlushAll(ctx)
}
