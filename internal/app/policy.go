package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropUpdate
	Disconnect
)

// Viewer is a UI connection watching call state.
type Viewer interface {
	ID() string
	// Dropped counts updates already discarded for this viewer.
	Dropped() int
}

// Policy decides what happens to a viewer that cannot keep up.
type Policy interface {
	OnBackPressure(v Viewer) BackpressureAction
}

// SimplePolicy drops updates until MaxDropped is reached, then disconnects.
type SimplePolicy struct {
	MaxDropped int
}

func (p SimplePolicy) OnBackPressure(v Viewer) BackpressureAction {
	if v.Dropped() >= p.MaxDropped {
		return Disconnect
	}
	return DropUpdate
}
