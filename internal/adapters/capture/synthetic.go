package capture

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

const frameDuration = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic generates silent audio and an idle video track. It needs no
// hardware, so headless hosts and tests can still negotiate real calls.
type Synthetic struct {
	clock clock.Clock
}

func NewSynthetic(c clock.Clock) *Synthetic {
	if c == nil {
		c = clock.New()
	}
	return &Synthetic{clock: c}
}

func (s *Synthetic) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (s *Synthetic) Capability() core.Capability {
	return core.Capability{Supported: true}
}

func (s *Synthetic) Acquire(ctx context.Context, t domain.CallType) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := "dial-" + uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, Classify(err)
	}
	st := &syntheticStream{tracks: []webrtc.TrackLocal{audio}, done: make(chan struct{})}
	if t.HasVideo() {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+uuid.NewString(), streamID)
		if err != nil {
			return nil, Classify(err)
		}
		st.tracks = append(st.tracks, video)
	}

	st.wg.Add(1)
	go st.pump(s.clock, audio)
	log.Debug().Str("module", "capture").Str("stream_id", streamID).Int("tracks", len(st.tracks)).Msg("synthetic media opened")
	return st, nil
}

type syntheticStream struct {
	tracks []webrtc.TrackLocal
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func (s *syntheticStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *syntheticStream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

// pump writes silence at the Opus frame rate until the stream is closed.
func (s *syntheticStream) pump(c clock.Clock, track *webrtc.TrackLocalStaticSample) {
	defer s.wg.Done()
	ticker := c.Ticker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			// Unbound tracks drop samples; that is expected before negotiation.
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
				log.Debug().Err(err).Str("module", "capture").Msg("synthetic write failed")
			}
		}
	}
}
