package main

import (
	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/telemetry"
	"github.com/spf13/cobra"
)

func newSampleCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Take one telemetry sample and append it to the configured sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			sinks, err := telemetry.OpenSinks(a.cfg.TelemetryConfig())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, sinks.Close())
			}()

			sampler := telemetry.NewSampler(a.client, a.cfg.Endpoint(), sinks)
			rec, err := sampler.Tick(cmd.Context())
			if err != nil {
				return err
			}

			return writeDocument(cmd.OutOrStdout(), output, rec)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format (json, yaml)")

	return cmd
}
