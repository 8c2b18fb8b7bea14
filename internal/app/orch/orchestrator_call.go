package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InitiateCall starts an outgoing call. Preconditions and the call:initiate
// send are checked before any state change; a failure produces one alert and
// leaves the orchestrator idle.
func (o *Orchestrator) InitiateCall(ctx context.Context, target domain.UserID, t domain.CallType) error {
	return o.exec(ctx, func() error { return o.initiate(target, t) })
}

func (o *Orchestrator) initiate(target domain.UserID, t domain.CallType) error {
	if o.stopped {
		return ErrStopped
	}
	if o.cur != nil {
		return o.refuse(core.ErrCallInProgress)
	}
	if !o.signal.Connected() {
		return o.refuse(core.ErrTransportUnavailable)
	}
	if cp := o.media.CheckCapability(); !cp.Supported {
		return o.refuse(&core.RemediationError{Err: core.ErrCapabilityUnavailable, Remediation: cp.Remediation})
	}
	if target == o.self.ID {
		return o.refuse(core.ErrSelfCall)
	}
	receiver, ok := o.presence.Lookup(target)
	if !ok {
		return o.refuse(core.ErrPeerUnreachable)
	}

	c := newCall(domain.CallID(uuid.NewString()), t, o.self, receiver, domain.CallStateCalling)
	err := o.signal.Send(core.EventCallInitiate, core.InitiatePayload{
		CallID:     c.id,
		ReceiverID: receiver.ID,
		CallType:   t,
		CallerInfo: o.self,
	})
	if err != nil {
		c.cancel()
		return o.refuse(transportErr(err))
	}
	o.cur = c
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Str("to", string(target)).Str("type", string(t)).Msg("calling")
	o.armRing(c)
	o.publish(nil)
	return nil
}

// AnswerCall accepts the ringing incoming call. It is a no-op when nothing rings.
func (o *Orchestrator) AnswerCall(ctx context.Context) error {
	return o.exec(ctx, o.answer)
}

func (o *Orchestrator) answer() error {
	c := o.cur
	if c == nil || c.state != domain.CallStateRinging || c.role(o.self.ID) != domain.RoleReceiver {
		log.Debug().Str("module", "orch").Msg("answer ignored: no ringing call")
		return nil
	}
	o.disarmRing(c)
	c.state = domain.CallStateInCall
	if err := o.signal.Send(core.EventCallAnswer, core.CallIDPayload{CallID: c.id}); err != nil {
		return o.fail(c, transportErr(err))
	}
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("answered")
	o.startMedia(c)
	o.publish(nil)
	return nil
}

// RejectCall declines the ringing incoming call. Rejecting anything else is a no-op.
func (o *Orchestrator) RejectCall(ctx context.Context) error {
	return o.exec(ctx, func() error {
		c := o.cur
		if c == nil || c.state != domain.CallStateRinging || c.role(o.self.ID) != domain.RoleReceiver {
			log.Debug().Str("module", "orch").Msg("reject ignored: not the ringing receiver")
			return nil
		}
		_ = o.send(core.EventCallReject, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonRejected})
		o.teardown(c, domain.EndReasonRejected, nil)
		return nil
	})
}

// EndCall hangs up whatever call exists. Calling it with no call is a no-op.
func (o *Orchestrator) EndCall(ctx context.Context, reason domain.EndReason) error {
	if reason == "" {
		reason = domain.EndReasonUserEnded
	}
	return o.exec(ctx, func() error {
		c := o.cur
		if c == nil {
			return nil
		}
		_ = o.send(core.EventCallEnd, core.ReasonPayload{CallID: c.id, Reason: reason})
		o.teardown(c, reason, nil)
		return nil
	})
}

func (o *Orchestrator) ToggleMute(ctx context.Context) error {
	return o.exec(ctx, func() error {
		c := o.cur
		if c == nil {
			return nil
		}
		c.controls.Muted = !c.controls.Muted
		if c.local != nil {
			c.local.SetAudioEnabled(!c.controls.Muted)
		}
		o.publish(nil)
		return nil
	})
}

// ToggleVideo flips camera track enablement. Voice calls have no camera.
func (o *Orchestrator) ToggleVideo(ctx context.Context) error {
	return o.exec(ctx, func() error {
		c := o.cur
		if c == nil || !c.callType.HasVideo() {
			return nil
		}
		c.controls.VideoEnabled = !c.controls.VideoEnabled
		if c.local != nil {
			c.local.SetVideoEnabled(c.controls.VideoEnabled)
		}
		o.publish(nil)
		return nil
	})
}

func (o *Orchestrator) ToggleSpeaker(ctx context.Context) error {
	return o.exec(ctx, func() error {
		c := o.cur
		if c == nil {
			return nil
		}
		c.controls.SpeakerEnabled = !c.controls.SpeakerEnabled
		if c.local != nil {
			o.routeSpeaker(c)
		}
		o.publish(nil)
		return nil
	})
}

// routeSpeaker applies the call's speaker control to the adapter. The route
// outlives calls, so every call sets it once its media is attached.
func (o *Orchestrator) routeSpeaker(c *call) {
	if r, ok := o.media.(core.SpeakerRouter); ok {
		r.RouteToSpeaker(c.controls.SpeakerEnabled)
	}
}

// refuse reports a failed precondition without touching the current call.
func (o *Orchestrator) refuse(err error) error {
	alert := core.AlertFor(err)
	log.Warn().Err(err).Str("module", "orch").Msg("call refused")
	o.publish(&alert)
	return err
}

// fail aborts c after an unrecoverable error: the peer is told (best effort),
// everything is released and exactly one alert is published.
func (o *Orchestrator) fail(c *call, err error) error {
	alert := core.AlertFor(err)
	log.Error().Err(err).Str("module", "orch").Str("call_id", string(c.id)).Msg("call failed")
	if o.signal.Connected() {
		_ = o.send(core.EventCallEnd, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonUserEnded})
	}
	o.teardown(c, domain.EndReasonFailed, &alert)
	return err
}

func transportErr(err error) error {
	if errors.Is(err, core.ErrTransportUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrTransportUnavailable, err)
}
