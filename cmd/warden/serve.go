package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/warden"
	"github.com/viant/warden/service/approval"
	"github.com/viant/warden/service/messaging"
)

func serveCmd() *cobra.Command {
	var interval time.Duration
	var workers int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Recover, dispatch approved requests and expire overdue ones until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			mutate := func(config *warden.Config) {
				if config.Events.Vendor == warden.EventsNone {
					config.Events.Vendor = string(messaging.VendorMemory)
				}
				if workers > 0 {
					config.Execution.Workers = workers
				}
			}
			return withService(ctx, mutate, func(ctx context.Context, srv *warden.Service) error {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				if err := srv.Listen(func(evt *approval.Event) {
					if evt.Context == nil {
						return
					}
					if err := encoder.Encode(evt.Context); err != nil {
						logger.Warn("notification_write_failed", "error", err)
					}
				}); err != nil {
					return err
				}
				recovery, err := srv.Start(ctx)
				if err != nil {
					return err
				}
				logger.Info("recovered",
					"reconciled", len(recovery.Reconciled),
					"redispatched", len(recovery.Redispatched),
					"failed", len(recovery.Failed),
					"expired", len(recovery.Expired))
				stop := approval.AutoExpire(ctx, srv.Approval(), interval)
				defer stop()
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warden %v serving, workers=%d\n", version, srv.Config().Execution.Workers)
				<-ctx.Done()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "expiry sweep interval")
	cmd.Flags().IntVar(&workers, "workers", 2, "dispatch workers")
	return cmd
}
