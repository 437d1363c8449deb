package main

import (
	"os"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("Command failed")
		} else {
			logger.Error().Err(err).Msg("Command failed")
		}
		os.Exit(1)
	}
}
