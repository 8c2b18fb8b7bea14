// Package capture provides the local audio and video tracks a call sends.
package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Source produces local tracks for one call at a time.
type Source interface {
	// RegisterCodecs populates m with the codecs the source encodes to.
	RegisterCodecs(m *webrtc.MediaEngine) error
	Capability() core.Capability
	// Acquire opens the tracks a call of type t needs. Errors wrap one of
	// core.ErrPermissionDenied, core.ErrDeviceUnavailable or core.ErrDeviceBusy.
	Acquire(ctx context.Context, t domain.CallType) (Stream, error)
}

// Stream is a set of open local tracks. Close releases the devices.
type Stream interface {
	Tracks() []webrtc.TrackLocal
	Close()
}

const (
	KindSynthetic = "synthetic"
	KindDevice    = "device"
)

// New returns the source configured by kind.
func New(kind string) (Source, error) {
	switch kind {
	case KindSynthetic:
		return NewSynthetic(nil), nil
	case KindDevice, "":
		return NewDevice(), nil
	}
	return nil, fmt.Errorf("unknown media source %q", kind)
}
