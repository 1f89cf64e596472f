package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := New()

	assert.Equal(t, "No device connected", f.New(ErrNoDevice).Error())
	assert.Equal(t, "custom", f.WithMessage(ErrNoDevice, "custom").Error())
	assert.Equal(t, "Operation timed out: boom", f.Wrap(ErrTimeout, fmt.Errorf("boom")).Error())
	assert.Equal(t, "Invalid interval value: 0s", f.WithData(ErrInvalidInterval, "0s").Error())
	assert.Equal(t, "storage_session_ended", f.New(ErrorCode("storage_session_ended")).Error())
}

func TestHasCodeWalksChain(t *testing.T) {
	f := New()
	inner := f.New(ErrNoDevice)
	outer := f.Wrap(ErrInitFailed, fmt.Errorf("connect: %w", inner))

	assert.True(t, HasCode(outer, ErrInitFailed))
	assert.True(t, HasCode(outer, ErrNoDevice))
	assert.False(t, HasCode(outer, ErrTimeout))
	assert.False(t, HasCode(fmt.Errorf("plain"), ErrInternal))
	assert.False(t, HasCode(nil, ErrInternal))
}

func TestCodeOf(t *testing.T) {
	f := New()

	assert.Equal(t, ErrBridgeMissing, CodeOf(fmt.Errorf("run: %w", f.New(ErrBridgeMissing))))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
}
