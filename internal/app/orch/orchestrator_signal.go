package orch

import (
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/rs/zerolog/log"
)

// The Handle* methods are called by the signaling dispatcher. They only
// schedule work on the loop, so they never block the channel's read pump.

func (o *Orchestrator) HandleIncoming(in core.IncomingCall) {
	o.post(func() { o.onIncoming(in) })
}

func (o *Orchestrator) HandleRinging(id domain.CallID) {
	o.post(func() {
		c := o.match(id, core.EventCallRinging)
		if c == nil || c.state != domain.CallStateCalling {
			return
		}
		c.remoteRinging = true
		o.publish(nil)
	})
}

func (o *Orchestrator) HandleAnswered(id domain.CallID) {
	o.post(func() {
		c := o.match(id, core.EventCallAnswered)
		if c == nil || c.state != domain.CallStateCalling || c.role(o.self.ID) != domain.RoleCaller {
			return
		}
		o.disarmRing(c)
		c.state = domain.CallStateInCall
		log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("remote answered")
		o.startMedia(c)
		o.publish(nil)
	})
}

func (o *Orchestrator) HandleRejected(p core.ReasonPayload) {
	o.post(func() {
		c := o.match(p.CallID, core.EventCallRejected)
		if c == nil {
			return
		}
		alert := core.Alert{Kind: core.AlertRejected, Message: "The call was declined."}
		if p.Reason == domain.EndReasonBusy {
			alert.Message = "The user is busy on another call."
		}
		o.teardown(c, domain.EndReasonRejected, &alert)
	})
}

func (o *Orchestrator) HandleEnded(p core.ReasonPayload) {
	o.post(func() {
		c := o.match(p.CallID, core.EventCallEnded)
		if c == nil {
			return
		}
		reason := p.Reason
		if reason == "" {
			reason = domain.EndReasonUserEnded
		}
		o.teardown(c, reason, nil)
	})
}

func (o *Orchestrator) HandleOffer(p core.DescriptionPayload) {
	o.post(func() { o.onRemoteOffer(p) })
}

func (o *Orchestrator) HandleAnswer(p core.DescriptionPayload) {
	o.post(func() { o.onRemoteAnswer(p) })
}

func (o *Orchestrator) HandleCandidate(p core.CandidatePayload) {
	o.post(func() { o.onRemoteCandidate(p) })
}

// match returns the current call iff id belongs to it. Messages for any other
// call are stale and dropped silently.
func (o *Orchestrator) match(id domain.CallID, event string) *call {
	c := o.cur
	if c == nil || c.id != id {
		log.Debug().Str("module", "orch").Str("event", event).Str("call_id", string(id)).Msg("stale message dropped")
		return nil
	}
	return c
}

func (o *Orchestrator) onIncoming(in core.IncomingCall) {
	if o.stopped || in.Caller.ID == o.self.ID {
		return
	}
	if c := o.cur; c != nil {
		switch {
		case c.id == in.CallID:
			return
		case o.isGlare(c, in):
			// Lower user id wins the crossing calls.
			if o.self.ID < in.Caller.ID {
				log.Info().Str("module", "orch").Str("call_id", string(in.CallID)).Msg("glare: keeping own call")
				return
			}
			log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("glare: yielding own call")
			_ = o.send(core.EventCallEnd, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonUserEnded})
			o.teardown(c, domain.EndReasonUserEnded, nil)
		default:
			log.Info().Str("module", "orch").Str("call_id", string(in.CallID)).Str("from", string(in.Caller.ID)).Msg("busy, rejecting incoming")
			_ = o.send(core.EventCallReject, core.ReasonPayload{CallID: in.CallID, Reason: domain.EndReasonBusy})
			return
		}
	}

	c := newCall(in.CallID, in.CallType, in.Caller, o.self, domain.CallStateRinging)
	o.cur = c
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Str("from", string(in.Caller.ID)).Msg("ringing")
	o.armRing(c)
	o.publish(nil)
}

// isGlare reports whether in crosses our own unanswered outgoing call to the same peer.
func (o *Orchestrator) isGlare(c *call, in core.IncomingCall) bool {
	return c.state == domain.CallStateCalling &&
		c.role(o.self.ID) == domain.RoleCaller &&
		c.receiver.ID == in.Caller.ID
}
