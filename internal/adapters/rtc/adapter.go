// Package rtc implements the media adapter on pion/webrtc.
package rtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Dial/internal/adapters/capture"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	iceDisconnectedTimeout = 10 * time.Second
	iceFailedTimeout       = 30 * time.Second
	iceKeepalive           = 2 * time.Second
)

// Adapter creates peer connections with trickle ICE and binds captured
// tracks to them.
type Adapter struct {
	source capture.Source
	config webrtc.Configuration
	api    *webrtc.API

	seq atomic.Uint64

	mu      sync.Mutex
	speaker bool
}

func New(source capture.Source, cfg webrtc.Configuration) (*Adapter, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := source.RegisterCodecs(mediaEngine); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepalive)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)
	return &Adapter{source: source, config: cfg, api: api}, nil
}

func (a *Adapter) CheckCapability() core.Capability {
	return a.source.Capability()
}

func (a *Adapter) AcquireLocalMedia(ctx context.Context, t domain.CallType) (core.MediaHandle, error) {
	stream, err := a.source.Acquire(ctx, t)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		stream.Close()
		return nil, ctx.Err()
	}
	return newLocalMedia(stream), nil
}

func (a *Adapter) CreateConnection(ctx context.Context) (core.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNegotiationFailed, err)
	}
	tag := fmt.Sprintf("pc-%d", a.seq.Add(1))
	log.Debug().Str("module", "webrtc").Str("conn", tag).Msg("peer connection created")
	return newConnection(pc, tag), nil
}

func (a *Adapter) CreateOffer(ctx context.Context, conn core.Connection, local core.MediaHandle) (webrtc.SessionDescription, error) {
	c, lm, err := unwrap(conn, local)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := lm.attach(c.pc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: add track: %v", core.ErrNegotiationFailed, err)
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer: %v", core.ErrNegotiationFailed, err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local offer: %v", core.ErrNegotiationFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

// CreateAnswer applies offer first so the local tracks reuse the offered
// transceivers instead of adding new m-lines.
func (a *Adapter) CreateAnswer(ctx context.Context, conn core.Connection, local core.MediaHandle, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	c, lm, err := unwrap(conn, local)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set remote offer: %v", core.ErrNegotiationFailed, err)
	}
	if err := lm.attach(c.pc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: add track: %v", core.ErrNegotiationFailed, err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create answer: %v", core.ErrNegotiationFailed, err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set local answer: %v", core.ErrNegotiationFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (a *Adapter) ApplyRemoteDescription(ctx context.Context, conn core.Connection, desc webrtc.SessionDescription) error {
	c, ok := conn.(*Connection)
	if !ok {
		return fmt.Errorf("%w: foreign connection %T", core.ErrNegotiationFailed, conn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote %s: %v", core.ErrNegotiationFailed, desc.Type, err)
	}
	return nil
}

// ApplyRemoteCandidate never fails the call; a bad candidate is only logged.
func (a *Adapter) ApplyRemoteCandidate(conn core.Connection, cand webrtc.ICECandidateInit) {
	c, ok := conn.(*Connection)
	if !ok {
		return
	}
	if err := c.pc.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Str("conn", c.tag).Msg("remote candidate rejected")
	}
}

// RouteToSpeaker records the output route. Desktop hosts have a single
// output, so the route is informational.
func (a *Adapter) RouteToSpeaker(on bool) {
	a.mu.Lock()
	a.speaker = on
	a.mu.Unlock()
	log.Info().Str("module", "webrtc").Bool("speaker", on).Msg("audio route")
}

func (a *Adapter) Speaker() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speaker
}

func unwrap(conn core.Connection, local core.MediaHandle) (*Connection, *LocalMedia, error) {
	c, ok := conn.(*Connection)
	if !ok {
		return nil, nil, fmt.Errorf("%w: foreign connection %T", core.ErrNegotiationFailed, conn)
	}
	lm, ok := local.(*LocalMedia)
	if !ok {
		return nil, nil, fmt.Errorf("%w: foreign media handle %T", core.ErrNegotiationFailed, local)
	}
	return c, lm, nil
}
