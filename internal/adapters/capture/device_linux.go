//go:build linux && cgo

package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Device captures from the host camera and microphone (V4L2 and malgo).
type Device struct {
	once     sync.Once
	selector *mediadevices.CodecSelector
	initErr  error
}

func NewDevice() *Device { return &Device{} }

func (d *Device) codecs() (*mediadevices.CodecSelector, error) {
	d.once.Do(func() {
		vpxParams, err := vpx.NewVP8Params()
		if err != nil {
			d.initErr = err
			return
		}
		vpxParams.BitRate = 1_000_000

		opusParams, err := opus.NewParams()
		if err != nil {
			d.initErr = err
			return
		}
		d.selector = mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		)
	})
	return d.selector, d.initErr
}

func (d *Device) RegisterCodecs(m *webrtc.MediaEngine) error {
	sel, err := d.codecs()
	if err != nil {
		return err
	}
	sel.Populate(m)
	return nil
}

// Capability requires at least one microphone; a camera is checked per call.
func (d *Device) Capability() core.Capability {
	if _, err := d.codecs(); err != nil {
		return core.Capability{Remediation: "Media codecs failed to initialise: " + err.Error()}
	}
	for _, info := range mediadevices.EnumerateDevices() {
		if info.Kind == mediadevices.AudioInput {
			return core.Capability{Supported: true}
		}
	}
	return core.Capability{Remediation: "No microphone was found. Connect one and restart Dial."}
}

func (d *Device) Acquire(ctx context.Context, t domain.CallType) (Stream, error) {
	sel, err := d.codecs()
	if err != nil {
		return nil, &core.RemediationError{Err: core.ErrCapabilityUnavailable, Remediation: err.Error()}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{
		Codec: sel,
		Audio: func(*mediadevices.MediaTrackConstraints) {},
	}
	if t.HasVideo() {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras yield frames the VP8 encoder rejects.
			c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatI444, frame.FormatRGBA}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, Classify(err)
	}
	tracks := stream.GetTracks()
	if t.HasVideo() && len(stream.GetVideoTracks()) == 0 {
		closeTracks(tracks)
		return nil, Classify(errors.New("no camera track"))
	}

	out := &deviceStream{tracks: make([]webrtc.TrackLocal, 0, len(tracks)), raw: tracks}
	for _, tr := range tracks {
		tr.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "capture").Str("track_id", tr.ID()).Msg("local track ended")
			}
		})
		out.tracks = append(out.tracks, tr)
	}
	log.Info().Str("module", "capture").Int("tracks", len(tracks)).Str("type", string(t)).Msg("device media opened")
	return out, nil
}

type deviceStream struct {
	tracks []webrtc.TrackLocal
	raw    []mediadevices.Track
	once   sync.Once
}

func (s *deviceStream) Tracks() []webrtc.TrackLocal { return s.tracks }

func (s *deviceStream) Close() {
	s.once.Do(func() { closeTracks(s.raw) })
}

func closeTracks(tracks []mediadevices.Track) {
	for _, t := range tracks {
		if err := t.Close(); err != nil {
			log.Debug().Err(err).Str("module", "capture").Msg("track close")
		}
	}
}
