package main

import (
	"fmt"

	"codeberg.org/mutker/psuctl/internal/psu"
	"github.com/spf13/cobra"
)

func newEnableCmd(a *app) *cobra.Command {
	var channel, voltage, current string

	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Program a channel's setpoints and switch its output on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := psu.ParseChannel(channel)
			if err != nil {
				return err
			}

			if err := a.supply().EnableChannel(cmd.Context(), a.cfg.Endpoint(), ch, voltage, current); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Channel %d enabled\n", int(ch))
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Channel number (1-4)")
	cmd.Flags().StringVar(&voltage, "voltage", "", "Voltage setpoint, sent verbatim")
	cmd.Flags().StringVar(&current, "current", "", "Current limit, sent verbatim")
	for _, name := range []string{"channel", "voltage", "current"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newDisableCmd(a *app) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Switch a channel's output off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := psu.ParseChannel(channel)
			if err != nil {
				return err
			}

			if err := a.supply().DisableChannel(cmd.Context(), a.cfg.Endpoint(), ch); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Channel %d disabled\n", int(ch))
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Channel number (1-4)")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}
