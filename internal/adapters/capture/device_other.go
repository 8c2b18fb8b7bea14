//go:build !linux || !cgo

package capture

import (
	"context"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

const deviceRemediation = "Camera and microphone capture needs a Linux build with cgo. Set media_source to synthetic to call without devices."

// Device reports capture as unavailable on this platform.
type Device struct{}

func NewDevice() *Device { return &Device{} }

func (d *Device) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *Device) Capability() core.Capability {
	return core.Capability{Remediation: deviceRemediation}
}

func (d *Device) Acquire(context.Context, domain.CallType) (Stream, error) {
	return nil, &core.RemediationError{Err: core.ErrCapabilityUnavailable, Remediation: deviceRemediation}
}
