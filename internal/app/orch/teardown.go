package orch

import (
	"time"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/rs/zerolog/log"
)

// armRing arms the single-shot no-answer timeout for calling and ringing.
func (o *Orchestrator) armRing(c *call) {
	o.disarmRing(c)
	c.ringTimer = o.clock.AfterFunc(o.ringTimeout, func() {
		o.post(func() { o.onRingTimeout(c) })
	})
}

func (o *Orchestrator) disarmRing(c *call) {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

// onRingTimeout re-validates the call and its state: a fire that raced a
// cancellation is a no-op.
func (o *Orchestrator) onRingTimeout(c *call) {
	if !o.isCurrent(c) || c.ringTimer == nil {
		return
	}
	c.ringTimer = nil
	switch c.state {
	case domain.CallStateCalling:
		log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("no answer")
		_ = o.send(core.EventCallEnd, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonNoAnswer})
		alert := core.Alert{Kind: core.AlertNoAnswer, Message: "No answer."}
		o.teardown(c, domain.EndReasonNoAnswer, &alert)
	case domain.CallStateRinging:
		log.Info().Str("module", "orch").Str("call_id", string(c.id)).Msg("auto-reject after ringing")
		_ = o.send(core.EventCallReject, core.ReasonPayload{CallID: c.id, Reason: domain.EndReasonNoAnswer})
		o.teardown(c, domain.EndReasonNoAnswer, nil)
	}
}

// armTick drives elapsedSeconds while the call is active.
func (o *Orchestrator) armTick(c *call) {
	c.tickTimer = o.clock.AfterFunc(time.Second, func() {
		o.post(func() { o.onTick(c) })
	})
}

func (o *Orchestrator) onTick(c *call) {
	if !o.isCurrent(c) || !c.connected || c.tickTimer == nil {
		return
	}
	c.elapsed = int(o.clock.Since(c.startedAt) / time.Second)
	o.armTick(c)
	o.publish(nil)
}

func (o *Orchestrator) disarmTimers(c *call) {
	o.disarmRing(c)
	if c.tickTimer != nil {
		c.tickTimer.Stop()
		c.tickTimer = nil
	}
}

// teardown is the single exit path for every way a call ends. It releases
// local media, the connection, remote media and timers in that order, then
// publishes the ended state followed by idle. Each step tolerates resources
// that are already released.
func (o *Orchestrator) teardown(c *call, reason domain.EndReason, alert *core.Alert) {
	if c == nil || o.cur != c {
		return
	}
	if c.local != nil {
		c.local.Stop()
		c.local = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	for _, t := range c.remote {
		t.Stop()
	}
	c.remote = nil
	o.disarmTimers(c)
	c.cancel()
	c.candidates = nil
	c.offer = nil

	c.state = domain.CallStateEnded
	c.endReason = reason
	c.connected = false
	log.Info().Str("module", "orch").Str("call_id", string(c.id)).Str("reason", string(reason)).Msg("call ended")
	o.publish(alert)

	o.cur = nil
	o.publish(nil)
}
