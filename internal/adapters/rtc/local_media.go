package rtc

import (
	"errors"
	"io"
	"sync"

	"github.com/dkeye/Dial/internal/adapters/capture"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// LocalMedia is the handle for one call's captured tracks. Disabling a kind
// swaps its sender to a nil track so nothing is transmitted.
type LocalMedia struct {
	stream capture.Stream

	mu      sync.Mutex
	senders map[string]*webrtc.RTPSender
	audioOn bool
	videoOn bool

	stopOnce sync.Once
}

func newLocalMedia(stream capture.Stream) *LocalMedia {
	return &LocalMedia{
		stream:  stream,
		senders: make(map[string]*webrtc.RTPSender),
		audioOn: true,
		videoOn: true,
	}
}

func (m *LocalMedia) Tracks() []domain.TrackInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracks := m.stream.Tracks()
	out := make([]domain.TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, domain.TrackInfo{
			ID:       t.ID(),
			Kind:     t.Kind().String(),
			StreamID: t.StreamID(),
			Enabled:  m.enabledLocked(t.Kind()),
		})
	}
	return out
}

func (m *LocalMedia) SetAudioEnabled(on bool) {
	m.setEnabled(webrtc.RTPCodecTypeAudio, on)
}

func (m *LocalMedia) SetVideoEnabled(on bool) {
	m.setEnabled(webrtc.RTPCodecTypeVideo, on)
}

func (m *LocalMedia) setEnabled(kind webrtc.RTPCodecType, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == webrtc.RTPCodecTypeAudio {
		m.audioOn = on
	} else {
		m.videoOn = on
	}
	for _, t := range m.stream.Tracks() {
		if t.Kind() != kind {
			continue
		}
		if s := m.senders[t.ID()]; s != nil {
			m.replaceLocked(s, t, on)
		}
	}
}

func (m *LocalMedia) enabledLocked(kind webrtc.RTPCodecType) bool {
	if kind == webrtc.RTPCodecTypeAudio {
		return m.audioOn
	}
	return m.videoOn
}

func (m *LocalMedia) replaceLocked(s *webrtc.RTPSender, t webrtc.TrackLocal, on bool) {
	var next webrtc.TrackLocal
	if on {
		next = t
	}
	if err := s.ReplaceTrack(next); err != nil {
		log.Warn().Err(err).Str("module", "webrtc").Str("track_id", t.ID()).Bool("enabled", on).Msg("replace track")
	}
}

// attach adds every track to pc once.
func (m *LocalMedia) attach(pc *webrtc.PeerConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.stream.Tracks() {
		if _, ok := m.senders[t.ID()]; ok {
			continue
		}
		sender, err := pc.AddTrack(t)
		if err != nil {
			return err
		}
		m.senders[t.ID()] = sender
		if !m.enabledLocked(t.Kind()) {
			m.replaceLocked(sender, t, false)
		}
		go drainRTCP(sender)
	}
	return nil
}

// Stop releases the capture devices. Safe to call more than once.
func (m *LocalMedia) Stop() {
	m.stopOnce.Do(func() {
		m.stream.Close()
		log.Debug().Str("module", "webrtc").Msg("local media stopped")
	})
}

// drainRTCP keeps the sender's interceptors fed until the connection closes.
func drainRTCP(s *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Str("module", "webrtc").Msg("rtcp read ended")
			}
			return
		}
	}
}
