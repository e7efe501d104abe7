package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/arpan404/img/internal/metrics"
	"github.com/arpan404/img/internal/pipeline"
)

func newScheduleCmd(g *globals) *cobra.Command {
	f := &runFlags{}
	var (
		spec        string
		metricsAddr string
		runNow      bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <content-file> [name...]",
		Short: "Produce a batch on a cron schedule until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(f, args[0], args[1:])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cfg.Logger = g.log
			cfg.Metrics = metrics.New()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := newScheduler(ctx, spec, cfg, f.timeout)
			if err != nil {
				return err
			}

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", cfg.Metrics.Handler())
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						g.log.Error("metrics server", "addr", metricsAddr, "err", err)
					}
				}()
				g.log.Info("serving metrics", "addr", metricsAddr)
			}

			if runNow {
				s.batch()
			}
			s.cron.Start()
			g.log.Info("schedule started", "cron", spec)

			<-ctx.Done()
			g.log.Info("stopping schedule, waiting for the running batch")
			<-s.cron.Stop().Done()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	addRunFlags(cmd, f)
	cmd.Flags().StringVar(&spec, "cron", "0 */6 * * *", "Cron expression (minute hour dom month dow)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&runNow, "now", false, "Run one batch immediately")
	return cmd
}

type scheduler struct {
	ctx     context.Context
	cfg     pipeline.Config
	timeout time.Duration
	cron    *cron.Cron
	run     func(context.Context, pipeline.Config) error
}

// newScheduler registers one batch per tick. A tick that fires while the
// previous batch is still running is skipped.
func newScheduler(ctx context.Context, spec string, cfg pipeline.Config, timeout time.Duration) (*scheduler, error) {
	s := &scheduler{
		ctx:     ctx,
		cfg:     cfg,
		timeout: timeout,
		run: func(ctx context.Context, cfg pipeline.Config) error {
			_, err := pipeline.Run(ctx, cfg)
			return err
		},
	}
	cl := cronLogger{log: cfg.Logger}
	s.cron = cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := s.cron.AddFunc(spec, s.batch); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *scheduler) batch() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.cfg.Logger.Info("scheduled batch starting")
	if err := s.run(ctx, s.cfg); err != nil {
		s.cfg.Logger.Error("scheduled batch failed", "err", err, "elapsed", time.Since(start).Round(time.Second))
		return
	}
	s.cfg.Logger.Info("scheduled batch done", "elapsed", time.Since(start).Round(time.Second))
}

// cronLogger routes cron's logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
