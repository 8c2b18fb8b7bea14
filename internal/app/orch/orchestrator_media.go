package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// isCurrent must be checked before applying the result of any awaited
// operation, so a superseded call is never resurrected.
func (o *Orchestrator) isCurrent(c *call) bool {
	return o.cur == c && c.ctx.Err() == nil
}

// startMedia acquires local media and a connection off the loop. Both are
// attached to the call in one step.
func (o *Orchestrator) startMedia(c *call) {
	if c.mediaRequested {
		return
	}
	c.mediaRequested = true
	ctx, t := c.ctx, c.callType
	go func() {
		local, conn, err := o.acquire(ctx, t)
		if !o.post(func() { o.onMediaReady(c, local, conn, err) }) {
			release(local, conn)
		}
	}()
}

func (o *Orchestrator) acquire(ctx context.Context, t domain.CallType) (core.MediaHandle, core.Connection, error) {
	local, err := o.media.AcquireLocalMedia(ctx, t)
	if err != nil {
		return nil, nil, acquireErr(err)
	}
	conn, err := o.media.CreateConnection(ctx)
	if err != nil {
		local.Stop()
		return nil, nil, negotiationErr(err)
	}
	return local, conn, nil
}

func (o *Orchestrator) onMediaReady(c *call, local core.MediaHandle, conn core.Connection, err error) {
	if !o.isCurrent(c) {
		release(local, conn)
		return
	}
	if err != nil {
		o.fail(c, err)
		return
	}
	c.local, c.conn = local, conn
	local.SetAudioEnabled(!c.controls.Muted)
	if c.callType.HasVideo() {
		local.SetVideoEnabled(c.controls.VideoEnabled)
	}
	o.routeSpeaker(c)
	o.bind(c, conn)
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Int("tracks", len(local.Tracks())).Msg("local media ready")

	if c.role(o.self.ID) == domain.RoleCaller {
		o.startOffer(c)
	} else {
		o.maybeAnswer(c)
	}
	o.publish(nil)
}

// bind routes connection callbacks, which arrive on adapter goroutines, back onto the loop.
func (o *Orchestrator) bind(c *call, conn core.Connection) {
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		o.post(func() { o.onLocalCandidate(c, ci) })
	})
	conn.OnTrack(func(t core.RemoteTrack) {
		if !o.post(func() { o.onRemoteTrack(c, t) }) {
			t.Stop()
		}
	})
	conn.OnStateChange(func(s webrtc.PeerConnectionState) {
		o.post(func() { o.onConnectionState(c, s) })
	})
}

func (o *Orchestrator) startOffer(c *call) {
	ctx, conn, local := c.ctx, c.conn, c.local
	go func() {
		desc, err := o.media.CreateOffer(ctx, conn, local)
		o.post(func() { o.onOfferCreated(c, desc, err) })
	}()
}

func (o *Orchestrator) onOfferCreated(c *call, desc webrtc.SessionDescription, err error) {
	if !o.isCurrent(c) {
		return
	}
	if err != nil {
		o.fail(c, negotiationErr(err))
		return
	}
	err = o.signal.Send(core.EventOffer, core.DescriptionPayload{
		CallID:      c.id,
		Description: desc,
		RecipientID: c.receiver.ID,
	})
	if err != nil {
		o.fail(c, transportErr(err))
		return
	}
	c.offerSent = true
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("offer sent")
}

func (o *Orchestrator) onRemoteOffer(p core.DescriptionPayload) {
	c := o.match(p.CallID, core.EventOffer)
	if c == nil || c.role(o.self.ID) != domain.RoleReceiver {
		return
	}
	if c.state != domain.CallStateRinging && c.state != domain.CallStateInCall {
		return
	}
	if c.offer != nil || c.answering {
		log.Debug().Str("module", "orch").Str("call_id", string(c.id)).Msg("duplicate offer ignored")
		return
	}
	desc := p.Description
	c.offer = &desc
	o.maybeAnswer(c)
}

// maybeAnswer creates the answer once the user has answered, local media is
// attached and the offer has arrived, whichever of these happens last.
func (o *Orchestrator) maybeAnswer(c *call) {
	if c.state != domain.CallStateInCall || c.local == nil || c.conn == nil || c.offer == nil || c.answering {
		return
	}
	c.answering = true
	ctx, conn, local, offer := c.ctx, c.conn, c.local, *c.offer
	go func() {
		desc, err := o.media.CreateAnswer(ctx, conn, local, offer)
		o.post(func() { o.onAnswerCreated(c, desc, err) })
	}()
}

func (o *Orchestrator) onAnswerCreated(c *call, desc webrtc.SessionDescription, err error) {
	if !o.isCurrent(c) {
		return
	}
	if err != nil {
		o.fail(c, negotiationErr(err))
		return
	}
	c.remoteDescSet = true
	o.flushCandidates(c)
	err = o.signal.Send(core.EventAnswer, core.DescriptionPayload{
		CallID:      c.id,
		Description: desc,
		RecipientID: c.caller.ID,
	})
	if err != nil {
		o.fail(c, transportErr(err))
		return
	}
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("answer sent")
}

func (o *Orchestrator) onRemoteAnswer(p core.DescriptionPayload) {
	c := o.match(p.CallID, core.EventAnswer)
	if c == nil || c.role(o.self.ID) != domain.RoleCaller {
		return
	}
	if !c.offerSent || c.applyingAnswer || c.remoteDescSet {
		log.Debug().Str("module", "orch").Str("call_id", string(c.id)).Msg("unexpected answer ignored")
		return
	}
	c.applyingAnswer = true
	ctx, conn, desc := c.ctx, c.conn, p.Description
	go func() {
		err := o.media.ApplyRemoteDescription(ctx, conn, desc)
		o.post(func() { o.onRemoteDescription(c, err) })
	}()
}

func (o *Orchestrator) onRemoteDescription(c *call, err error) {
	if !o.isCurrent(c) {
		return
	}
	if err != nil {
		o.fail(c, negotiationErr(err))
		return
	}
	c.remoteDescSet = true
	o.flushCandidates(c)
}

// onRemoteCandidate queues candidates until the remote description is set.
func (o *Orchestrator) onRemoteCandidate(p core.CandidatePayload) {
	c := o.match(p.CallID, core.EventICECandidate)
	if c == nil {
		return
	}
	if c.conn == nil || !c.remoteDescSet {
		c.candidates = append(c.candidates, p.Candidate)
		return
	}
	o.media.ApplyRemoteCandidate(c.conn, p.Candidate)
}

func (o *Orchestrator) flushCandidates(c *call) {
	queued := c.candidates
	c.candidates = nil
	for _, cand := range queued {
		o.media.ApplyRemoteCandidate(c.conn, cand)
	}
	if len(queued) > 0 {
		log.Debug().Str("module", "orch").Str("call_id", string(c.id)).Int("count", len(queued)).Msg("flushed queued candidates")
	}
}

func (o *Orchestrator) onLocalCandidate(c *call, ci webrtc.ICECandidateInit) {
	if !o.isCurrent(c) {
		return
	}
	_ = o.send(core.EventICECandidate, core.CandidatePayload{
		CallID:      c.id,
		Candidate:   ci,
		RecipientID: c.peer(o.self.ID).ID,
	})
}

func (o *Orchestrator) onRemoteTrack(c *call, t core.RemoteTrack) {
	if !o.isCurrent(c) {
		t.Stop()
		return
	}
	c.addRemote(t)
	info := t.Info()
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Str("kind", info.Kind).Str("track_id", info.ID).Msg("remote track")
	o.publish(nil)
}

func (o *Orchestrator) onConnectionState(c *call, s webrtc.PeerConnectionState) {
	if !o.isCurrent(c) {
		return
	}
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Str("peer_connection_state", s.String()).Msg("connection state")
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if c.state != domain.CallStateInCall || c.connected {
			return
		}
		c.connected = true
		c.startedAt = o.clock.Now()
		o.armTick(c)
		o.publish(nil)
	case webrtc.PeerConnectionStateFailed:
		o.fail(c, fmt.Errorf("%w: connection failed", core.ErrNegotiationFailed))
	default:
	}
}

func release(local core.MediaHandle, conn core.Connection) {
	if local != nil {
		local.Stop()
	}
	if conn != nil {
		conn.Close()
	}
}

// negotiationErr keeps known failure kinds and files everything else under
// ErrNegotiationFailed.
func negotiationErr(err error) error {
	for _, known := range []error{
		core.ErrCapabilityUnavailable,
		core.ErrPermissionDenied,
		core.ErrDeviceUnavailable,
		core.ErrDeviceBusy,
		core.ErrNegotiationFailed,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
}

func acquireErr(err error) error {
	for _, known := range []error{
		core.ErrCapabilityUnavailable,
		core.ErrPermissionDenied,
		core.ErrDeviceUnavailable,
		core.ErrDeviceBusy,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
}
