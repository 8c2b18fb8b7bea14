package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// remoteTrack drains an incoming track so its receive buffers never fill,
// counting packets for diagnostics.
type remoteTrack struct {
	src      *webrtc.TrackRemote
	receiver *webrtc.RTPReceiver

	cancel context.CancelFunc
	once   sync.Once

	// lastSeq and seen belong to the read loop.
	lastSeq uint16
	seen    bool

	packets atomic.Uint64
	bytes   atomic.Uint64
	lost    atomic.Uint64
}

func newRemoteTrack(parent context.Context, src *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *remoteTrack {
	ctx, cancel := context.WithCancel(parent)
	t := &remoteTrack{src: src, receiver: receiver, cancel: cancel}
	go t.loop(ctx)
	return t
}

func (t *remoteTrack) Info() domain.TrackInfo {
	return domain.TrackInfo{
		ID:       t.src.ID(),
		Kind:     t.src.Kind().String(),
		StreamID: t.src.StreamID(),
		Enabled:  true,
		Packets:  t.packets.Load(),
		Bytes:    t.bytes.Load(),
	}
}

// Stop ends the read loop. The loop itself exits once the receiver stops
// delivering packets.
func (t *remoteTrack) Stop() {
	t.once.Do(func() {
		t.cancel()
		if t.receiver != nil {
			if err := t.receiver.Stop(); err != nil {
				log.Debug().Err(err).Str("module", "webrtc").Str("track_id", t.src.ID()).Msg("receiver stop")
			}
		}
	})
}

func (t *remoteTrack) Stats() (packets, bytes, lost uint64) {
	return t.packets.Load(), t.bytes.Load(), t.lost.Load()
}

func (t *remoteTrack) loop(ctx context.Context) {
	logger := log.With().Str("module", "webrtc").Str("track_id", t.src.ID()).Logger()
	for {
		select {
		case <-ctx.Done():
			t.logStats(&logger)
			return
		default:
		}
		pkt, _, err := t.src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track read ended")
			t.logStats(&logger)
			return
		}
		t.count(pkt)
	}
}

func (t *remoteTrack) count(pkt *rtp.Packet) {
	t.packets.Add(1)
	t.bytes.Add(uint64(len(pkt.Payload)))
	// Gaps of half the sequence space or more are reordering, not loss.
	if t.seen {
		gap := pkt.SequenceNumber - t.lastSeq
		if gap >= 1<<15 {
			return
		}
		if gap > 1 {
			t.lost.Add(uint64(gap - 1))
		}
	}
	t.lastSeq = pkt.SequenceNumber
	t.seen = true
}

func (t *remoteTrack) logStats(logger *zerolog.Logger) {
	packets, bytes, lost := t.Stats()
	logger.Info().Uint64("packets", packets).Uint64("bytes", bytes).Uint64("lost", lost).Msg("remote track closed")
}
