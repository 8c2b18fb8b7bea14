package orch

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

// call is the single active call record. Only the loop goroutine touches it.
type call struct {
	id       domain.CallID
	callType domain.CallType
	caller   domain.UserRef
	receiver domain.UserRef
	state    domain.CallState

	// ctx is cancelled on teardown; workers use it to abandon in-flight work.
	ctx    context.Context
	cancel context.CancelFunc

	local  core.MediaHandle
	conn   core.Connection
	remote []core.RemoteTrack

	controls  domain.Controls
	startedAt time.Time
	elapsed   int
	connected bool

	remoteRinging bool
	endReason     domain.EndReason

	ringTimer *clock.Timer
	tickTimer *clock.Timer

	mediaRequested bool
	offer          *webrtc.SessionDescription
	offerSent      bool
	answering      bool
	applyingAnswer bool
	remoteDescSet  bool
	candidates     []webrtc.ICECandidateInit
}

func newCall(id domain.CallID, t domain.CallType, caller, receiver domain.UserRef, state domain.CallState) *call {
	ctx, cancel := context.WithCancel(context.Background())
	return &call{
		id:       id,
		callType: t,
		caller:   caller,
		receiver: receiver,
		state:    state,
		ctx:      ctx,
		cancel:   cancel,
		controls: domain.DefaultControls(t),
	}
}

func (c *call) role(self domain.UserID) domain.Role {
	if c.caller.ID == self {
		return domain.RoleCaller
	}
	return domain.RoleReceiver
}

// peer is the other side of the call.
func (c *call) peer(self domain.UserID) domain.UserRef {
	if c.role(self) == domain.RoleCaller {
		return c.receiver
	}
	return c.caller
}

// addRemote merges a track into remoteMedia. A track with a known id
// replaces only its predecessor.
func (c *call) addRemote(t core.RemoteTrack) {
	id := t.Info().ID
	for i, old := range c.remote {
		if old.Info().ID == id {
			if old != t {
				old.Stop()
			}
			c.remote[i] = t
			return
		}
	}
	c.remote = append(c.remote, t)
}

// Snapshot is the observable call state for rendering.
type Snapshot struct {
	State          domain.CallState   `json:"state"`
	CallID         domain.CallID      `json:"callId,omitempty"`
	CallType       domain.CallType    `json:"callType,omitempty"`
	Role           domain.Role        `json:"role,omitempty"`
	Caller         *domain.UserRef    `json:"caller,omitempty"`
	Receiver       *domain.UserRef    `json:"receiver,omitempty"`
	LocalMedia     []domain.TrackInfo `json:"localMedia"`
	RemoteMedia    []domain.TrackInfo `json:"remoteMedia"`
	Controls       domain.Controls    `json:"controls"`
	ElapsedSeconds int                `json:"elapsedSeconds"`
	Connected      bool               `json:"connected"`
	RemoteRinging  bool               `json:"remoteRinging"`
	EndReason      domain.EndReason   `json:"endReason,omitempty"`
}

// Update is delivered to subscribers after every change.
type Update struct {
	Snapshot Snapshot    `json:"snapshot"`
	Alert    *core.Alert `json:"alert,omitempty"`
}

func idleSnapshot() Snapshot {
	return Snapshot{
		State:       domain.CallStateIdle,
		LocalMedia:  []domain.TrackInfo{},
		RemoteMedia: []domain.TrackInfo{},
	}
}

func (c *call) snapshot(self domain.UserID) Snapshot {
	caller, receiver := c.caller, c.receiver
	s := Snapshot{
		State:          c.state,
		CallID:         c.id,
		CallType:       c.callType,
		Role:           c.role(self),
		Caller:         &caller,
		Receiver:       &receiver,
		LocalMedia:     []domain.TrackInfo{},
		RemoteMedia:    make([]domain.TrackInfo, 0, len(c.remote)),
		Controls:       c.controls,
		ElapsedSeconds: c.elapsed,
		Connected:      c.connected,
		RemoteRinging:  c.remoteRinging,
		EndReason:      c.endReason,
	}
	if c.local != nil {
		s.LocalMedia = c.local.Tracks()
	}
	for _, t := range c.remote {
		s.RemoteMedia = append(s.RemoteMedia, t.Info())
	}
	return s
}
