package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/events"
)

// newWatchCmd tails the lifecycle subjects the serve command bridges onto NATS.
func newWatchCmd() *cobra.Command {
	var natsURL string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print room and booking events from NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				natsURL = cfg.Events.NATSURL
			}

			bus, err := events.NewNATSEventBus(natsURL)
			if err != nil {
				return err
			}
			defer bus.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			show := func(msg *events.Message) {
				var ev events.RoomEvent
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					fmt.Fprintf(os.Stderr, "skipping malformed event on %s: %v\n", msg.Subject, err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(out, "%s  %-18s room=%s booking=%s\n",
					ev.OccurredAt.Format(time.RFC3339), msg.Subject, ev.RoomID, ev.BookingID)
			}

			for _, subject := range []string{events.RoomWildcard, events.BookingWildcard} {
				if err := bus.Subscribe(subject, show); err != nil {
					return fmt.Errorf("subscribe %s: %w", subject, err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(out, "watching %s and %s on %s\n", events.RoomWildcard, events.BookingWildcard, natsURL)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL (defaults to EVENTS_NATS_URL)")
	return cmd
}
