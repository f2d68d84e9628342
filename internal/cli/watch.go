package cli

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the watcher: queue timers plus scheduled blob polls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}

			if addr := a.cfg.Watch.MetricsAddr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				go func() {
					if err := http.ListenAndServe(addr, mux); err != nil {
						log.Printf("[watch] metrics server: %v", err)
					}
				}()
				log.Printf("[watch] metrics on %s/metrics", addr)
			}

			for _, l := range a.claimed {
				l := l
				go func() {
					if err := l.Start(ctx); err != nil {
						log.Printf("[watch] extension listener: %v", err)
					}
				}()
			}

			a.listener.StartPolling(ctx)
			defer a.listener.StopPolling()

			// One poll up front so a restart does not wait a full
			// schedule period to notice pending work.
			if err := a.listener.Poll(ctx); err != nil {
				return err
			}

			c := cron.New()
			if _, err := c.AddFunc(a.cfg.Watch.Schedule, func() {
				if err := a.listener.Poll(ctx); err != nil {
					log.Printf("[watch] poll: %v", err)
				}
			}); err != nil {
				return err
			}
			c.Start()
			log.Printf("[watch] polling on schedule %q", a.cfg.Watch.Schedule)

			<-ctx.Done()
			<-c.Stop().Done()
			return nil
		},
	}
}
