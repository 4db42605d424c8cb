package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config holds the peer connection settings shared by every capture.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// capture is one acquired handle: a peer connection carrying local sample tracks.
type capture struct {
	kind      domain.MediaKind
	pc        *webrtc.PeerConnection
	tracks    []*webrtc.TrackLocalStaticSample
	createdAt time.Time
}

// PionMediaCapability backs media handles with pion peer connections. Media
// frames are written to the tracks by the transport layer; this type only
// owns their lifecycle.
type PionMediaCapability struct {
	config Config
	api    *webrtc.API

	mu       sync.Mutex
	captures map[string]*capture

	logger *zap.SugaredLogger
}

var _ ports.MediaCapability = (*PionMediaCapability)(nil)

func NewPionMediaCapability(config Config, logger *zap.SugaredLogger) (*PionMediaCapability, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if config.PortRange.Min > 0 && config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(config.PortRange.Min, config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	return &PionMediaCapability{
		config:   config,
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine)),
		captures: make(map[string]*capture),
		logger:   logger,
	}, nil
}

func (c *PionMediaCapability) newPeerConnection() (*webrtc.PeerConnection, error) {
	return c.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   c.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}

// AcquireLocalMedia creates the camera/microphone tracks requested by constraints.
func (c *PionMediaCapability) AcquireLocalMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !constraints.Video && !constraints.Audio {
		return nil, fmt.Errorf("no media kind requested")
	}

	id := uuid.NewString()
	var specs []trackSpec
	if constraints.Audio {
		specs = append(specs, trackSpec{
			id:     "audio",
			stream: "local-" + id,
			codec:  webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		})
	}
	if constraints.Video {
		specs = append(specs, trackSpec{
			id:     "video",
			stream: "local-" + id,
			codec:  webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		})
	}

	handle, err := c.open(id, domain.MediaKindLocal, specs)
	if err != nil {
		return nil, err
	}
	c.logger.Infow("Local media acquired",
		"handle", id,
		"video", constraints.Video,
		"audio", constraints.Audio,
		"width", constraints.Width,
		"height", constraints.Height,
		"frame_rate", constraints.FrameRate,
	)
	return handle, nil
}

// AcquireScreenCapture creates a single video track for a participant's screen.
func (c *PionMediaCapability) AcquireScreenCapture(ctx context.Context, constraints domain.ScreenCaptureConstraints) (*domain.MediaHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	handle, err := c.open(id, domain.MediaKindScreen, []trackSpec{{
		id:     "screen",
		stream: "screen-" + string(constraints.ParticipantID),
		codec:  webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	}})
	if err != nil {
		return nil, err
	}
	c.logger.Infow("Screen capture acquired",
		"handle", id,
		"participant_id", constraints.ParticipantID,
		"width", constraints.Width,
		"height", constraints.Height,
	)
	return handle, nil
}

type trackSpec struct {
	id     string
	stream string
	codec  webrtc.RTPCodecCapability
}

func (c *PionMediaCapability) open(id string, kind domain.MediaKind, specs []trackSpec) (*domain.MediaHandle, error) {
	pc, err := c.newPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	entry := &capture{kind: kind, pc: pc, createdAt: time.Now()}
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		track, err := webrtc.NewTrackLocalStaticSample(spec.codec, spec.id, spec.stream)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to create %s track: %w", spec.id, err)
		}
		if _, err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("failed to add %s track: %w", spec.id, err)
		}
		entry.tracks = append(entry.tracks, track)
		names = append(names, spec.id)
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Debugw("Capture connection state changed", "handle", id, "state", state.String())
	})

	c.mu.Lock()
	c.captures[id] = entry
	c.mu.Unlock()

	return &domain.MediaHandle{ID: id, Kind: kind, Tracks: names}, nil
}

// Release closes the handle's peer connection. Unknown or already released
// handles are ignored.
func (c *PionMediaCapability) Release(ctx context.Context, handle *domain.MediaHandle) error {
	if handle == nil {
		return nil
	}

	c.mu.Lock()
	entry, ok := c.captures[handle.ID]
	delete(c.captures, handle.ID)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := entry.pc.Close(); err != nil {
		return fmt.Errorf("failed to close %s capture: %w", entry.kind, err)
	}
	c.logger.Infow("Media released", "handle", handle.ID, "kind", entry.kind, "held_for", time.Since(entry.createdAt))
	return nil
}

// Active returns the number of handles not yet released.
func (c *PionMediaCapability) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.captures)
}

// Close releases every outstanding handle.
func (c *PionMediaCapability) Close() error {
	c.mu.Lock()
	captures := c.captures
	c.captures = make(map[string]*capture)
	c.mu.Unlock()

	var firstErr error
	for id, entry := range captures {
		if err := entry.pc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close capture %s: %w", id, err)
		}
	}
	return firstErr
}
