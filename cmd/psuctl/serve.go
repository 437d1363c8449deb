package main

import (
	"context"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/psuctl/internal/api"
	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/metrics"
	"codeberg.org/mutker/psuctl/internal/pid"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API and the telemetry sampler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx)
		},
	}
}

// serve runs until ctx is cancelled or one of its components fails.
func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDPath()); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDPath()); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector, err := metrics.NewService(reg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}

	client := scpi.NewClient(scpi.WithTimeout(cfg.Timeout), scpi.WithObserver(collector))
	supply := psu.NewSupply(client)
	ep := cfg.Endpoint()

	g, gctx := errgroup.WithContext(ctx)
	opts := []api.Option{api.WithGatherer(reg)}

	if cfg.Telemetry {
		sinks, err := telemetry.OpenSinks(cfg.TelemetryConfig())
		if err != nil {
			return errFactory.Wrap(errors.ErrInitApp, err)
		}
		defer func() {
			if cerr := sinks.Close(); cerr != nil {
				logger.Error().Err(cerr).Msg("Failed to close telemetry sinks")
			}
		}()

		if r := sinks.Reader(); r != nil {
			opts = append(opts, api.WithTelemetry(r))
		}

		sampler := telemetry.NewSampler(client, ep, sinks,
			telemetry.WithInterval(cfg.Interval),
			telemetry.WithTickObserver(collector))
		g.Go(func() error {
			return sampler.Run(gctx)
		})
	} else {
		logger.Info().Msg("Telemetry sampler disabled")
	}

	server := api.NewServer(supply, ep, opts...)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Listen)
	})

	logger.Info().
		Str("endpoint", ep.String()).
		Str("listen", cfg.Listen).
		Bool("telemetry", cfg.Telemetry).
		Msg("psuctl started")

	err = g.Wait()

	logger.Info().Msg("Exiting...")

	return err
}
