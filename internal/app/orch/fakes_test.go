package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
)

type sentMsg struct {
	event   string
	payload any
}

type fakeSignal struct {
	mu        sync.Mutex
	connected bool
	sent      []sentMsg
	failOn    map[string]error
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{connected: true, failOn: map[string]error{}}
}

func (s *fakeSignal) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSignal) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return core.ErrTransportUnavailable
	}
	if err := s.failOn[event]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMsg{event: event, payload: payload})
	return nil
}

func (s *fakeSignal) events(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, m := range s.sent {
		if m.event == event {
			out = append(out, m.payload)
		}
	}
	return out
}

func (s *fakeSignal) count(event string) int { return len(s.events(event)) }

type fakeHandle struct {
	mu    sync.Mutex
	kind  domain.CallType
	stops int
	audio bool
	video bool
}

func (h *fakeHandle) Tracks() []domain.TrackInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []domain.TrackInfo{{ID: "mic", Kind: "audio", Enabled: h.audio}}
	if h.kind.HasVideo() {
		out = append(out, domain.TrackInfo{ID: "cam", Kind: "video", Enabled: h.video})
	}
	return out
}

func (h *fakeHandle) SetAudioEnabled(on bool) { h.mu.Lock(); h.audio = on; h.mu.Unlock() }
func (h *fakeHandle) SetVideoEnabled(on bool) { h.mu.Lock(); h.video = on; h.mu.Unlock() }
func (h *fakeHandle) Stop()                   { h.mu.Lock(); h.stops++; h.mu.Unlock() }

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

type fakeConn struct {
	mu      sync.Mutex
	closes  int
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) Close() { c.mu.Lock(); c.closes++; c.mu.Unlock() }

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) emitState(s webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(s)
}

func (c *fakeConn) emitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	fn(t)
}

func (c *fakeConn) emitCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	fn(ci)
}

type fakeTrack struct {
	mu    sync.Mutex
	id    string
	kind  string
	stops int
}

func (t *fakeTrack) Info() domain.TrackInfo {
	return domain.TrackInfo{ID: t.id, Kind: t.kind, Enabled: true}
}

func (t *fakeTrack) Stop() { t.mu.Lock(); t.stops++; t.mu.Unlock() }

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeMedia struct {
	mu          sync.Mutex
	capable     bool
	remediation string
	acquireErr  error
	offerErr    error
	answerErr   error
	// acquireGate, when set, holds AcquireLocalMedia until it is closed.
	acquireGate chan struct{}

	ops         []string
	handles     []*fakeHandle
	conns       []*fakeConn
	remoteDescs []webrtc.SessionDescription
	offers      []webrtc.SessionDescription
	candidates  []webrtc.ICECandidateInit
	speaker     []bool
}

func newFakeMedia() *fakeMedia { return &fakeMedia{capable: true} }

func (m *fakeMedia) CheckCapability() core.Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.Capability{Supported: m.capable, Remediation: m.remediation}
}

func (m *fakeMedia) AcquireLocalMedia(ctx context.Context, t domain.CallType) (core.MediaHandle, error) {
	m.mu.Lock()
	gate := m.acquireGate
	m.ops = append(m.ops, "acquire:"+string(t))
	err := m.acquireErr
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	h := &fakeHandle{kind: t, audio: true, video: t.HasVideo()}
	m.mu.Lock()
	m.handles = append(m.handles, h)
	m.mu.Unlock()
	return h, nil
}

func (m *fakeMedia) CreateConnection(ctx context.Context) (core.Connection, error) {
	c := &fakeConn{}
	m.mu.Lock()
	m.ops = append(m.ops, "connection")
	m.conns = append(m.conns, c)
	m.mu.Unlock()
	return c, nil
}

func (m *fakeMedia) CreateOffer(ctx context.Context, conn core.Connection, local core.MediaHandle) (webrtc.SessionDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "offer")
	if m.offerErr != nil {
		return webrtc.SessionDescription{}, m.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (m *fakeMedia) CreateAnswer(ctx context.Context, conn core.Connection, local core.MediaHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "answer")
	m.offers = append(m.offers, offer)
	if m.answerErr != nil {
		return webrtc.SessionDescription{}, m.answerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (m *fakeMedia) ApplyRemoteDescription(ctx context.Context, conn core.Connection, desc webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "remote-description")
	m.remoteDescs = append(m.remoteDescs, desc)
	return nil
}

func (m *fakeMedia) ApplyRemoteCandidate(conn core.Connection, cand webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, cand)
}

func (m *fakeMedia) RouteToSpeaker(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speaker = append(m.speaker, on)
}

func (m *fakeMedia) countOps(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (m *fakeMedia) opsSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *fakeMedia) conn(i int) *fakeConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.conns) {
		return nil
	}
	return m.conns[i]
}

func (m *fakeMedia) lastConn() *fakeConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

func (m *fakeMedia) handle(i int) *fakeHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.handles) {
		return nil
	}
	return m.handles[i]
}

func (m *fakeMedia) candidateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.candidates)
}

type fakePresence map[domain.UserID]domain.UserRef

func (p fakePresence) Lookup(id domain.UserID) (domain.UserRef, bool) {
	u, ok := p[id]
	return u, ok
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sig   *fakeSignal
	media *fakeMedia
	clk   *clock.Mock
	self  domain.UserRef

	mu      sync.Mutex
	updates []Update
}

func newHarness(t *testing.T, self domain.UserID, online ...domain.UserID) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		sig:   newFakeSignal(),
		media: newFakeMedia(),
		clk:   clock.NewMock(),
		self:  domain.UserRef{ID: self, DisplayName: string(self)},
	}
	presence := fakePresence{}
	for _, id := range online {
		presence[id] = domain.UserRef{ID: id, DisplayName: "User " + string(id)}
	}
	h.o = New(h.self, h.sig, h.media, presence, WithClock(h.clk))
	h.o.Subscribe(func(u Update) {
		h.mu.Lock()
		h.updates = append(h.updates, u)
		h.mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.o.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// sync waits until every event posted so far has been processed.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.o.exec(context.Background(), func() error { return nil }); err != nil && !errors.Is(err, ErrStopped) {
		h.t.Fatalf("sync: %v", err)
	}
}

func (h *harness) waitFor(desc string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.sync()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s (state=%s)", desc, h.o.Snapshot().State)
}

func (h *harness) state() domain.CallState { return h.o.Snapshot().State }

func (h *harness) callID() domain.CallID { return h.o.Snapshot().CallID }

func (h *harness) alerts() []core.Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []core.Alert
	for _, u := range h.updates {
		if u.Alert != nil {
			out = append(out, *u.Alert)
		}
	}
	return out
}

func (h *harness) states() []domain.CallState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.CallState, 0, len(h.updates))
	for _, u := range h.updates {
		out = append(out, u.Snapshot.State)
	}
	return out
}

func (h *harness) initiate(target domain.UserID, t domain.CallType) domain.CallID {
	h.t.Helper()
	if err := h.o.InitiateCall(context.Background(), target, t); err != nil {
		h.t.Fatalf("InitiateCall: %v", err)
	}
	return h.callID()
}

// connectCaller drives an outgoing call up to the point where the offer is sent.
func (h *harness) connectCaller(target domain.UserID, t domain.CallType) (domain.CallID, *fakeConn) {
	h.t.Helper()
	id := h.initiate(target, t)
	h.o.HandleAnswered(id)
	h.waitFor("offer sent", func() bool { return h.sig.count(core.EventOffer) == 1 })
	return id, h.media.lastConn()
}

func (h *harness) incoming(id domain.CallID, from domain.UserID, t domain.CallType) {
	h.o.HandleIncoming(core.IncomingCall{
		CallID:   id,
		CallType: t,
		Caller:   domain.UserRef{ID: from, DisplayName: "User " + string(from)},
	})
	h.sync()
}
