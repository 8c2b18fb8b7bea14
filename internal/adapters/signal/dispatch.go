package signal

import (
	"encoding/json"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/rs/zerolog/log"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type incomingPayload struct {
	CallID     domain.CallID   `json:"callId"`
	CallType   domain.CallType `json:"callType"`
	CallerInfo wireUser        `json:"callerInfo"`
}

type usersPayload struct {
	Users []wireUser `json:"users"`
}

type userPayload struct {
	User wireUser `json:"user"`
}

type offlinePayload struct {
	UserID domain.UserID `json:"userId"`
}

func (c *Client) dispatch(data []byte) {
	var env inbound
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	log.Debug().Str("module", "signal").Str("event", env.Event).Msg("received")

	switch env.Event {
	case core.EventCallIncoming:
		c.handleIncoming(env.Data)
	case core.EventCallRinging:
		if p, ok := decode[core.CallIDPayload](env); ok {
			c.handler.HandleRinging(p.CallID)
		}
	case core.EventCallAnswered:
		if p, ok := decode[core.CallIDPayload](env); ok {
			c.handler.HandleAnswered(p.CallID)
		}
	case core.EventCallRejected:
		if p, ok := decode[core.ReasonPayload](env); ok {
			c.handler.HandleRejected(p)
		}
	case core.EventCallEnded:
		if p, ok := decode[core.ReasonPayload](env); ok {
			c.handler.HandleEnded(p)
		}
	case core.EventOffer:
		if p, ok := decode[core.DescriptionPayload](env); ok {
			c.handler.HandleOffer(p)
		}
	case core.EventAnswer:
		if p, ok := decode[core.DescriptionPayload](env); ok {
			c.handler.HandleAnswer(p)
		}
	case core.EventICECandidate:
		if p, ok := decode[core.CandidatePayload](env); ok {
			c.handler.HandleCandidate(p)
		}
	case core.EventUsersOnline:
		if p, ok := decode[usersPayload](env); ok && c.presence != nil {
			c.presence.Replace(refs(p.Users))
		}
	case core.EventUserOnline:
		if p, ok := decode[userPayload](env); ok && c.presence != nil {
			c.presence.SetOnline(p.User.ref)
		}
	case core.EventUserOffline:
		if p, ok := decode[offlinePayload](env); ok {
			c.limiter.Forget(p.UserID)
			if c.presence != nil {
				c.presence.SetOffline(p.UserID)
			}
		}
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("unknown signal")
	}
}

func (c *Client) handleIncoming(raw json.RawMessage) {
	var p incomingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad call:incoming payload")
		return
	}
	t, err := domain.ParseCallType(string(p.CallType))
	if err != nil || p.CallID == "" {
		log.Error().Err(err).Str("module", "signal").Str("call_id", string(p.CallID)).Msg("invalid call:incoming")
		return
	}
	caller := p.CallerInfo.ref
	if caller.IsZero() {
		log.Error().Str("module", "signal").Str("call_id", string(p.CallID)).Msg("call:incoming without caller")
		return
	}
	if !c.limiter.Allow(caller.ID, p.CallID) {
		log.Warn().Str("module", "signal").Str("from", string(caller.ID)).Msg("incoming call rate limited")
		_ = c.Send(core.EventCallReject, core.ReasonPayload{CallID: p.CallID, Reason: domain.EndReasonBusy})
		return
	}
	c.handler.HandleIncoming(core.IncomingCall{CallID: p.CallID, CallType: t, Caller: caller})
}

func decode[T any](env inbound) (T, bool) {
	var p T
	if err := json.Unmarshal(env.Data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", env.Event).Msg("bad payload")
		return p, false
	}
	return p, true
}
