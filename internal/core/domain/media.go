package domain

import "fmt"

type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution4K    Resolution = "4k"
)

// Dimensions maps a resolution profile to pixel width and height.
func (r Resolution) Dimensions() (width, height int, ok bool) {
	switch r {
	case Resolution720p:
		return 1280, 720, true
	case Resolution1080p:
		return 1920, 1080, true
	case Resolution4K:
		return 3840, 2160, true
	}
	return 0, 0, false
}

type MediaSettings struct {
	VideoEnabled     bool       `json:"videoEnabled"`
	AudioEnabled     bool       `json:"audioEnabled"`
	Resolution       Resolution `json:"resolution"`
	FrameRate        int        `json:"frameRate"`
	EchoCancellation bool       `json:"echoCancellation"`
	NoiseSuppression bool       `json:"noiseSuppression"`
}

func DefaultMediaSettings() MediaSettings {
	return MediaSettings{
		VideoEnabled:     true,
		AudioEnabled:     true,
		Resolution:       Resolution720p,
		FrameRate:        30,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

func (m MediaSettings) Validate() error {
	if _, _, ok := m.Resolution.Dimensions(); !ok {
		return fmt.Errorf("unsupported resolution %q", m.Resolution)
	}
	if m.FrameRate <= 0 || m.FrameRate > 60 {
		return fmt.Errorf("frame rate must be within 1..60")
	}
	return nil
}

// Constraints converts the settings into capture constraints for the media capability.
func (m MediaSettings) Constraints() MediaConstraints {
	w, h, _ := m.Resolution.Dimensions()
	return MediaConstraints{
		Video:            m.VideoEnabled,
		Audio:            m.AudioEnabled,
		Width:            w,
		Height:           h,
		FrameRate:        m.FrameRate,
		EchoCancellation: m.EchoCancellation,
		NoiseSuppression: m.NoiseSuppression,
	}
}

type MediaSettingsPatch struct {
	VideoEnabled     *bool       `json:"videoEnabled,omitempty"`
	AudioEnabled     *bool       `json:"audioEnabled,omitempty"`
	Resolution       *Resolution `json:"resolution,omitempty"`
	FrameRate        *int        `json:"frameRate,omitempty"`
	EchoCancellation *bool       `json:"echoCancellation,omitempty"`
	NoiseSuppression *bool       `json:"noiseSuppression,omitempty"`
}

// Apply merges the patch and returns the result plus the names of changed fields.
func (m MediaSettings) Apply(p MediaSettingsPatch) (MediaSettings, []string) {
	var changed []string
	if p.VideoEnabled != nil {
		m.VideoEnabled = *p.VideoEnabled
		changed = append(changed, "videoEnabled")
	}
	if p.AudioEnabled != nil {
		m.AudioEnabled = *p.AudioEnabled
		changed = append(changed, "audioEnabled")
	}
	if p.Resolution != nil {
		m.Resolution = *p.Resolution
		changed = append(changed, "resolution")
	}
	if p.FrameRate != nil {
		m.FrameRate = *p.FrameRate
		changed = append(changed, "frameRate")
	}
	if p.EchoCancellation != nil {
		m.EchoCancellation = *p.EchoCancellation
		changed = append(changed, "echoCancellation")
	}
	if p.NoiseSuppression != nil {
		m.NoiseSuppression = *p.NoiseSuppression
		changed = append(changed, "noiseSuppression")
	}
	return m, changed
}

// MediaConstraints is what the media capability is asked to capture.
type MediaConstraints struct {
	Video            bool `json:"video"`
	Audio            bool `json:"audio"`
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	FrameRate        int  `json:"frameRate"`
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
}

type ScreenCaptureConstraints struct {
	ParticipantID ParticipantID `json:"participantId"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	FrameRate     int           `json:"frameRate"`
	Cursor        bool          `json:"cursor"`
}

type MediaKind string

const (
	MediaKindLocal  MediaKind = "local"
	MediaKindScreen MediaKind = "screen"
)

// MediaHandle is an opaque reference to acquired capture resources.
type MediaHandle struct {
	ID     string    `json:"id"`
	Kind   MediaKind `json:"kind"`
	Tracks []string  `json:"tracks,omitempty"`
}
