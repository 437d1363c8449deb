package metrics

import "codeberg.org/mutker/psuctl/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrRegisterFailed = errors.ErrorCode("metrics_register_failed")
)

func init() {
	errors.Register(map[errors.ErrorCode]string{
		ErrRegisterFailed: "Failed to register metrics collectors",
	})
}
