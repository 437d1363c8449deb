package main

import (
	"os"

	"codeberg.org/mutker/psuctl/internal/config"
	"codeberg.org/mutker/psuctl/internal/logger"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	client *scpi.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "psuctl",
		Short: "Four-channel power supply controller",
		Long: "psuctl drives a programmable four-channel power supply over SCPI and " +
			"records instrument telemetry.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newServeCmd(a),
		newEnableCmd(a),
		newDisableCmd(a),
		newStatusCmd(a),
		newSampleCmd(a),
		newSendCmd(a),
	)

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel.String())
	if err != nil {
		return err
	}
	logger.Init(os.Stderr, level, logger.IsService())

	logger.Debug().
		Str("endpoint", cfg.Endpoint().String()).
		Dur("timeout", cfg.Timeout).
		Msg("Config loaded")

	a.cfg = cfg
	a.client = scpi.NewClient(scpi.WithTimeout(cfg.Timeout))

	return nil
}

func (a *app) supply() *psu.Supply {
	return psu.NewSupply(a.client)
}
