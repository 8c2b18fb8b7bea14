package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Dial/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection wraps one peer connection. Callbacks may be registered at any
// time; events that arrive before registration are dropped.
type Connection struct {
	pc  *webrtc.PeerConnection
	tag string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)

	closeOnce sync.Once
}

func DefaultWebRTCConfig(iceServers []webrtc.ICEServer) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		}
	}
	return webrtc.Configuration{ICEServers: iceServers}
}

func newConnection(pc *webrtc.PeerConnection, tag string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{pc: pc, tag: tag, ctx: ctx, cancel: cancel}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("conn", c.tag).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("conn", c.tag).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.RLock()
		fn := c.onState
		c.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("conn", c.tag).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		rt := newRemoteTrack(c.ctx, track, receiver)
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn == nil {
			rt.Stop()
			return
		}
		fn(rt)
	})

	return c
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// Close is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.onICE, c.onTrack, c.onState = nil, nil, nil
		c.mu.Unlock()
		c.cancel()
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("conn", c.tag).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("conn", c.tag).Msg("closed")
		}
	})
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}
