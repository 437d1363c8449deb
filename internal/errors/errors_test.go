package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/psuctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const errTest = errors.ErrorCode("test_code")

func TestFactoryWrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := errors.New().Wrap(errors.ErrOperationFailed, cause)

	assert.Equal(t, errors.ErrOperationFailed, err.Code())
	assert.Equal(t, "Operation failed: boom", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestUnknownCodeFallsBackToCode(t *testing.T) {
	err := errors.New().New(errTest)
	assert.Equal(t, "test_code", err.Error())

	errors.Register(map[errors.ErrorCode]string{errTest: "Test failure"})
	assert.Equal(t, "Test failure", err.Error())
}

func TestWithMessageAndData(t *testing.T) {
	err := errors.New().WithMessage(errors.ErrInvalidArgument, "bad channel")
	assert.Equal(t, "bad channel", err.Error())

	withData := err.WithData(7)
	assert.Equal(t, "bad channel: 7", withData.Error())
	assert.Equal(t, 7, withData.GetData())
	assert.Equal(t, errors.ErrInvalidArgument, withData.Code())
}

func TestCodeOf(t *testing.T) {
	inner := errors.New().New(errors.ErrTimeout)
	wrapped := fmt.Errorf("outer: %w", inner)

	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(wrapped))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestHasCode(t *testing.T) {
	timeout := errors.New().Wrap(errors.ErrTimeout, stderrors.New("deadline"))
	outer := errors.New().Wrap(errors.ErrOperationFailed, timeout)
	joined := errors.Join(stderrors.New("other"), outer)

	require.Error(t, joined)
	assert.True(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.True(t, errors.HasCode(joined, errors.ErrTimeout))
	assert.True(t, errors.HasCode(joined, errors.ErrOperationFailed))
	assert.False(t, errors.HasCode(joined, errors.ErrInternal))
	assert.False(t, errors.HasCode(nil, errors.ErrInternal))
}
