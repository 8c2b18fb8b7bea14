package domain

import "fmt"

type CallID string

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

func ParseCallType(s string) (CallType, error) {
	switch CallType(s) {
	case CallTypeVoice, CallTypeVideo:
		return CallType(s), nil
	}
	return "", fmt.Errorf("unknown call type %q", s)
}

func (t CallType) HasVideo() bool { return t == CallTypeVideo }

// CallState is the lifecycle state of the single call record.
type CallState string

const (
	CallStateIdle    CallState = "idle"
	CallStateCalling CallState = "calling"
	CallStateRinging CallState = "ringing"
	CallStateInCall  CallState = "in-call"
	CallStateEnded   CallState = "ended"
)

type Role string

const (
	RoleNone     Role = ""
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

// EndReason travels on call:end and call:reject.
type EndReason string

const (
	EndReasonUserEnded EndReason = "user-ended"
	EndReasonNoAnswer  EndReason = "no-answer"
	EndReasonRejected  EndReason = "rejected"
	EndReasonBusy      EndReason = "busy"
	// EndReasonFailed is local only; it is never sent to the peer.
	EndReasonFailed EndReason = "failed"
)

// Controls never leave the client.
type Controls struct {
	Muted          bool `json:"muted"`
	VideoEnabled   bool `json:"videoEnabled"`
	SpeakerEnabled bool `json:"speakerEnabled"`
}

// DefaultControls: video calls start on speaker with the camera on.
func DefaultControls(t CallType) Controls {
	return Controls{
		VideoEnabled:   t.HasVideo(),
		SpeakerEnabled: t.HasVideo(),
	}
}

// TrackInfo describes one media track for rendering.
type TrackInfo struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	StreamID string `json:"streamId,omitempty"`
	Enabled  bool   `json:"enabled"`
	// Packets and Bytes count received media; they stay zero for local tracks.
	Packets uint64 `json:"packets,omitempty"`
	Bytes   uint64 `json:"bytes,omitempty"`
}
