package telemetry

import (
	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"
)

// Sinks groups the configured record destinations.
type Sinks struct {
	*MultiSink

	Log *FileLog
	// Store is nil when the SQLite mirror is disabled.
	Store *Store
}

// OpenSinks opens the JSON-lines log and, if configured, the SQLite store.
func OpenSinks(cfg Config) (*Sinks, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	fileLog, err := OpenFileLog(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	sinks := &Sinks{Log: fileLog}

	var mirror Sink = noopSink{}
	if cfg.StoreEnabled() {
		store, err := OpenStore(cfg, logger.WithComponent("store"))
		if err != nil {
			fileLog.Close()
			return nil, err
		}
		sinks.Store = store
		mirror = store
	} else {
		logger.Debug().Msg("Telemetry store disabled, using no-op sink")
	}

	sinks.MultiSink = NewMultiSink(fileLog, mirror)

	return sinks, nil
}

// Reader returns the store as a Reader, or nil when it is disabled.
func (s *Sinks) Reader() Reader {
	if s.Store == nil {
		return nil
	}
	return s.Store
}
