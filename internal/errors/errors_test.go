package errors_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/vibesd/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidLogLevel)
	assert.Equal(t, "Invalid log level [invalid_log_level]", err.Error())

	wrapped := errFactory.Wrap(errors.ErrReadConfig, stderrors.New("boom"))
	assert.Contains(t, wrapped.Error(), "Failed to read config file")
	assert.Contains(t, wrapped.Error(), "boom")

	withData := errFactory.WithData(errors.ErrInvalidInterval, "consult_interval=0s")
	assert.Contains(t, withData.Error(), "consult_interval=0s")
	assert.Equal(t, "consult_interval=0s", withData.Data())
}

func TestCodeOf(t *testing.T) {
	errFactory := errors.New()
	base := stderrors.New("dial tcp: refused")

	inner := errFactory.Wrap(errors.ErrUnavailable, base)
	outer := errFactory.Wrap(errors.ErrOperationFailed, inner)

	assert.Equal(t, errors.ErrOperationFailed, errors.CodeOf(outer))
	assert.True(t, errors.HasCode(outer, errors.ErrUnavailable))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.True(t, errors.Is(outer, base))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(base))
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := errors.New().New(errors.ErrTimeout).WithMessage("inference timed out")

	assert.Equal(t, errors.ErrTimeout, err.Code())
	assert.Equal(t, "inference timed out [operation_timeout]", err.Error())
}
