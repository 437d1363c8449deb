package telemetry

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

// maxPendingBatches bounds how many unflushed batches are held while the
// database keeps rejecting writes. Older records are dropped past that.
const maxPendingBatches = 10

// Store mirrors telemetry records into SQLite. Records are buffered and
// written in batches, either when the buffer fills or on a periodic flush.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config

	mu        sync.Mutex
	buffer    []Record
	batchSize int
	closed    bool

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

var (
	_ Sink   = (*Store)(nil)
	_ Reader = (*Store)(nil)
)

func OpenStore(cfg Config, log logger.Logger) (*Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.WithMessage(ErrStorageInit, "telemetry database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	s := &Store{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if batchSize > 1 && cfg.FlushInterval > 0 {
		s.flushTicker = time.NewTicker(cfg.FlushInterval)
		go s.flusher()
	} else {
		close(s.flushDoneChan)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", batchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Telemetry store initialized")

	return s, nil
}

func (s *Store) Record(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(ErrSinkClosed)
	}

	s.buffer = append(s.buffer, rec)

	if len(s.buffer) >= s.batchSize {
		if err := s.flush(); err != nil {
			s.trimBacklog()
			return err
		}
	}

	return nil
}

// Flush writes any buffered records immediately.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// Recent returns up to limit persisted records, newest first. Buffered
// records are flushed before reading.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	errFactory := errors.New()

	if err := s.Flush(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectRecentSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Timestamp, &rec.Voltage, &rec.Current, &rec.Power); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return records, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Signal the flusher goroutine to stop and wait for its final flush
	close(s.shutdownChan)
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}
	<-s.flushDoneChan

	var flushErr error
	if err := s.Flush(); err != nil {
		flushErr = err
		s.logger.Error().Err(err).Msg("Failed to flush telemetry on close")
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	s.logger.Info().Msg("Telemetry store closed")

	return flushErr
}

func (s *Store) flusher() {
	defer close(s.flushDoneChan)

	for {
		select {
		case <-s.flushTicker.C:
			s.mu.Lock()
			if err := s.flush(); err != nil {
				s.logger.Error().Err(err).Msg("Periodic telemetry flush failed")
				s.trimBacklog()
			}
			s.mu.Unlock()
		case <-s.shutdownChan:
			return
		}
	}
}

// trimBacklog drops the oldest buffered records beyond the pending limit.
// Must be called with s.mu held.
func (s *Store) trimBacklog() {
	limit := s.batchSize * maxPendingBatches
	dropped := len(s.buffer) - limit
	if dropped <= 0 {
		return
	}

	n := copy(s.buffer, s.buffer[dropped:])
	s.buffer = s.buffer[:n]

	s.logger.Warn().
		Int("dropped", dropped).
		Int("pending", n).
		Msg("Telemetry database unavailable, dropping oldest buffered records")
}

// flush must be called with s.mu held.
func (s *Store) flush() error {
	if len(s.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := s.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertRecordSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range s.buffer {
		if _, err := stmt.Exec(rec.Timestamp, rec.Voltage, rec.Current, rec.Power); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	s.logger.Debug().Int("records", len(s.buffer)).Msg("Flushed telemetry to database")
	s.buffer = s.buffer[:0]

	return nil
}
