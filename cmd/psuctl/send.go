package main

import (
	"fmt"
	"strings"

	"codeberg.org/mutker/psuctl/internal/scpi"
	"github.com/spf13/cobra"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send COMMAND...",
		Short: "Send one raw SCPI command and print the response line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			resp, err := a.client.Send(cmd.Context(), a.cfg.Endpoint(), command)
			if err != nil {
				return err
			}

			// Set commands are acknowledged with an empty line.
			if scpi.IsQuery(command) || resp != "" {
				fmt.Fprintln(cmd.OutOrStdout(), resp)
			}
			return nil
		},
	}
}
