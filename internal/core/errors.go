package core

import "errors"

// Every failure the orchestrator can surface belongs to one of these kinds.
// Adapters wrap them with %w so callers can match with errors.Is.
var (
	ErrCapabilityUnavailable = errors.New("real-time media unavailable")
	ErrPermissionDenied      = errors.New("media permission denied")
	ErrDeviceUnavailable     = errors.New("media device unavailable")
	ErrDeviceBusy            = errors.New("media device busy")
	ErrTransportUnavailable  = errors.New("signaling transport unavailable")
	ErrNegotiationFailed     = errors.New("negotiation failed")
	ErrPeerUnreachable       = errors.New("peer unreachable")

	ErrSelfCall       = errors.New("cannot call yourself")
	ErrCallInProgress = errors.New("another call is in progress")
)

// AlertKind names an Alert for UI lookup.
type AlertKind string

const (
	AlertCapability  AlertKind = "capability-unavailable"
	AlertPermission  AlertKind = "permission-denied"
	AlertDevice      AlertKind = "device-unavailable"
	AlertDeviceBusy  AlertKind = "device-busy"
	AlertTransport   AlertKind = "transport-unavailable"
	AlertNegotiation AlertKind = "negotiation-failed"
	AlertUnreachable AlertKind = "peer-unreachable"
	AlertSelfCall    AlertKind = "self-call"
	AlertBusy        AlertKind = "call-in-progress"
	AlertNoAnswer    AlertKind = "no-answer"
	AlertRejected    AlertKind = "rejected"
	AlertUnknown     AlertKind = "error"
)

// Alert is a single user-visible notification.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
}

// AlertFor converts err into the notification shown to the user.
// A remediation message attached by the adapter wins over the generic text.
func AlertFor(err error) Alert {
	var rem *RemediationError
	if errors.As(err, &rem) && rem.Remediation != "" {
		return Alert{Kind: alertKind(err), Message: rem.Remediation}
	}
	return Alert{Kind: alertKind(err), Message: UserMessage(err)}
}

func alertKind(err error) AlertKind {
	switch {
	case errors.Is(err, ErrCapabilityUnavailable):
		return AlertCapability
	case errors.Is(err, ErrPermissionDenied):
		return AlertPermission
	case errors.Is(err, ErrDeviceUnavailable):
		return AlertDevice
	case errors.Is(err, ErrDeviceBusy):
		return AlertDeviceBusy
	case errors.Is(err, ErrTransportUnavailable):
		return AlertTransport
	case errors.Is(err, ErrNegotiationFailed):
		return AlertNegotiation
	case errors.Is(err, ErrPeerUnreachable):
		return AlertUnreachable
	case errors.Is(err, ErrSelfCall):
		return AlertSelfCall
	case errors.Is(err, ErrCallInProgress):
		return AlertBusy
	}
	return AlertUnknown
}

// UserMessage returns the guidance shown for each failure kind.
func UserMessage(err error) string {
	switch alertKind(err) {
	case AlertCapability:
		return "Calls are not supported on this device."
	case AlertPermission:
		return "Microphone or camera access was denied. Allow access in system settings and try again."
	case AlertDevice:
		return "No usable microphone or camera was found."
	case AlertDeviceBusy:
		return "Your microphone or camera is being used by another application."
	case AlertTransport:
		return "You are offline. Check your connection and try again."
	case AlertNegotiation:
		return "The call could not be connected."
	case AlertUnreachable:
		return "This user is offline."
	case AlertSelfCall:
		return "You cannot call yourself."
	case AlertBusy:
		return "Finish the current call first."
	}
	return "Something went wrong with the call."
}

// RemediationError carries an adapter-provided, user-actionable message.
type RemediationError struct {
	Err         error
	Remediation string
}

func (e *RemediationError) Error() string {
	if e.Remediation == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Remediation
}

func (e *RemediationError) Unwrap() error { return e.Err }
