package telemetry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/psuctl/internal/errors"
)

// FileLog appends records to a file as one JSON object per line. The file
// is never truncated or rewritten.
type FileLog struct {
	path string
	mu   sync.Mutex
	file *os.File
}

var _ Sink = (*FileLog)(nil)

func OpenFileLog(path string) (*FileLog, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidLogPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &FileLog{path: path, file: f}, nil
}

func (l *FileLog) Path() string {
	return l.path
}

// Record writes rec as a single line with one write call.
func (l *FileLog) Record(_ context.Context, rec Record) error {
	errFactory := errors.New()

	line, err := json.Marshal(rec)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errFactory.New(ErrSinkClosed)
	}

	if _, err := l.file.Write(line); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	err := l.file.Close()
	l.file = nil
	if err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}
