package usb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedUnknownWhenUnopened(t *testing.T) {
	e := New(nil)
	assert.Equal(t, SpeedUnknown, e.Speed())
}

func TestDeviceDescriptorClosedWhenUnopened(t *testing.T) {
	e := New(nil)
	assert.Equal(t, "closed", e.DeviceDescriptor())
}

func TestIsTransferringFalseBeforeOpen(t *testing.T) {
	e := New(nil)
	assert.False(t, e.IsTransferring())
}

func TestStopTransferClearsFlagSynchronously(t *testing.T) {
	e := New(nil)
	e.transferring = true
	e.StopTransfer()
	assert.False(t, e.IsTransferring())
}
