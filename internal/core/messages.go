package core

import (
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Outbound events.
const (
	EventCallInitiate = "call:initiate"
	EventCallAnswer   = "call:answer"
	EventCallReject   = "call:reject"
	EventCallEnd      = "call:end"
)

// Inbound events.
const (
	EventCallIncoming = "call:incoming"
	EventCallAnswered = "call:answered"
	EventCallRejected = "call:rejected"
	EventCallRinging  = "call:ringing"
	EventCallEnded    = "call:ended"

	EventUsersOnline = "users:online"
	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"
)

// Negotiation events travel in both directions.
const (
	EventOffer        = "webrtc:offer"
	EventAnswer       = "webrtc:answer"
	EventICECandidate = "webrtc:ice-candidate"
)

type InitiatePayload struct {
	CallID     domain.CallID   `json:"callId"`
	ReceiverID domain.UserID   `json:"receiverId"`
	CallType   domain.CallType `json:"callType"`
	CallerInfo domain.UserRef  `json:"callerInfo"`
}

type CallIDPayload struct {
	CallID domain.CallID `json:"callId"`
}

type ReasonPayload struct {
	CallID domain.CallID    `json:"callId"`
	Reason domain.EndReason `json:"reason,omitempty"`
}

type DescriptionPayload struct {
	CallID      domain.CallID             `json:"callId"`
	Description webrtc.SessionDescription `json:"description"`
	RecipientID domain.UserID             `json:"recipientId,omitempty"`
}

type CandidatePayload struct {
	CallID      domain.CallID           `json:"callId"`
	Candidate   webrtc.ICECandidateInit `json:"candidate"`
	RecipientID domain.UserID           `json:"recipientId,omitempty"`
}

// IncomingCall is the normalized form of call:incoming.
type IncomingCall struct {
	CallID   domain.CallID
	CallType domain.CallType
	Caller   domain.UserRef
}

// Presence answers the reachability precondition of InitiateCall.
type Presence interface {
	Lookup(id domain.UserID) (domain.UserRef, bool)
}
