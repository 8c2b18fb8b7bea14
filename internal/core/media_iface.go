package core

import (
	"context"

	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Capability is the result of probing the platform for real-time media.
type Capability struct {
	Supported   bool   `json:"supported"`
	Remediation string `json:"remediation,omitempty"`
}

// MediaAdapter wraps capability detection and the media/negotiation primitives.
// When CheckCapability reports unsupported, every other method fails with
// ErrCapabilityUnavailable.
type MediaAdapter interface {
	CheckCapability() Capability
	// AcquireLocalMedia opens the microphone, and the camera iff the call is video.
	AcquireLocalMedia(ctx context.Context, t domain.CallType) (MediaHandle, error)
	CreateConnection(ctx context.Context) (Connection, error)
	// CreateOffer binds local tracks, creates an offer and sets it as the local description.
	CreateOffer(ctx context.Context, conn Connection, local MediaHandle) (webrtc.SessionDescription, error)
	// CreateAnswer applies the remote offer, binds local tracks and sets the answer locally.
	CreateAnswer(ctx context.Context, conn Connection, local MediaHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ApplyRemoteDescription(ctx context.Context, conn Connection, desc webrtc.SessionDescription) error
	// ApplyRemoteCandidate is best effort. Failures are logged, never returned.
	ApplyRemoteCandidate(conn Connection, cand webrtc.ICECandidateInit)
}

// MediaHandle owns local capture. Stop must be safe to call more than once.
type MediaHandle interface {
	Tracks() []domain.TrackInfo
	SetAudioEnabled(on bool)
	SetVideoEnabled(on bool)
	Stop()
}

// Connection is one negotiation session. Close must be safe to call more than once.
type Connection interface {
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack is invoked once per remote track.
	OnTrack(func(RemoteTrack))
	OnStateChange(func(webrtc.PeerConnectionState))
	Close()
}

// RemoteTrack is a remote media track delivered by the adapter.
// The orchestrator disposes it; Stop must be idempotent.
type RemoteTrack interface {
	Info() domain.TrackInfo
	Stop()
}

// SpeakerRouter is implemented by adapters that can route audio output.
type SpeakerRouter interface {
	RouteToSpeaker(on bool)
}
