package main

import (
	"encoding/json"
	"io"

	"codeberg.org/mutker/psuctl/internal/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

func newStatusCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print measured voltage and current of every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != outputJSON && output != outputYAML {
				return errors.New().WithData(errors.ErrInvalidArgument, output)
			}

			// The document always has four entries; failed channels read
			// N/A and the poll error still decides the exit status.
			status, pollErr := a.supply().GetAllStatus(cmd.Context(), a.cfg.Endpoint())

			if err := writeDocument(cmd.OutOrStdout(), output, status); err != nil {
				return err
			}

			return pollErr
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputJSON, "Output format (json, yaml)")

	return cmd
}

func writeDocument(w io.Writer, format string, v any) error {
	errFactory := errors.New()

	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		return nil
	}
}
