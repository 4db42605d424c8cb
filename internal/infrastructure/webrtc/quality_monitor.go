package webrtc

import (
	"context"
	"fmt"
	"math"
	"time"

	"telecare/internal/core/domain"

	"github.com/pion/rtcp"
	"go.uber.org/zap"
)

// QualityReporter receives per-participant connection quality samples.
type QualityReporter interface {
	ReportConnectionQuality(ctx context.Context, participantID domain.ParticipantID, quality float64) error
}

// QualityThresholds are the limits above which a connection starts losing points.
type QualityThresholds struct {
	PacketLoss float64 // fraction, 0..1
	Jitter     time.Duration
	Latency    time.Duration
}

// DefaultQualityThresholds matches a connection good enough for HD video.
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		PacketLoss: 0.01,
		Jitter:     30 * time.Millisecond,
		Latency:    100 * time.Millisecond,
	}
}

// ReceptionStats is the aggregate of one batch of RTCP reception reports.
type ReceptionStats struct {
	PacketLoss float64
	Jitter     time.Duration
	Latency    time.Duration
	Reports    int
}

// QualityMonitor turns RTCP feedback into a 0..100 connection quality score.
type QualityMonitor struct {
	thresholds QualityThresholds
	clockRate  uint32
	onSample   func(quality float64)
	logger     *zap.SugaredLogger
}

func NewQualityMonitor(thresholds QualityThresholds, logger *zap.SugaredLogger) *QualityMonitor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &QualityMonitor{
		thresholds: thresholds,
		clockRate:  90000,
		logger:     logger,
	}
}

// OnSample registers fn to observe every computed score. Not safe to call
// concurrently with HandlePackets.
func (m *QualityMonitor) OnSample(fn func(quality float64)) {
	m.onSample = fn
}

// Collect aggregates receiver reports and NACKs. ok is false when the batch
// carries no reception feedback.
func (m *QualityMonitor) Collect(packets []rtcp.Packet) (stats ReceptionStats, ok bool) {
	var (
		loss    float64
		jitter  float64
		latency time.Duration
		rtts    int
		nacks   int
	)
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				loss += float64(report.FractionLost) / 256
				jitter += float64(report.Jitter)
				stats.Reports++
				if report.LastSenderReport != 0 && report.Delay != 0 {
					latency += time.Duration(report.Delay) * time.Second / 65536
					rtts++
				}
			}
		case *rtcp.TransportLayerNack:
			nacks += len(p.Nacks)
		}
	}
	if stats.Reports == 0 {
		return ReceptionStats{}, false
	}

	stats.PacketLoss = loss / float64(stats.Reports)
	if nacks > 0 && stats.PacketLoss == 0 {
		stats.PacketLoss = math.Min(float64(nacks)/100, 1)
	}
	meanJitter := jitter / float64(stats.Reports)
	stats.Jitter = time.Duration(meanJitter / float64(m.clockRate) * float64(time.Second))
	if rtts > 0 {
		stats.Latency = latency / time.Duration(rtts)
	}
	return stats, true
}

// Score maps reception stats to 0..100. Each metric above its threshold
// deducts points, capped per metric.
func (m *QualityMonitor) Score(stats ReceptionStats) float64 {
	score := 100.0

	if excess := stats.PacketLoss - m.thresholds.PacketLoss; excess > 0 {
		score -= math.Min(excess*400, 60)
	}
	if excess := stats.Jitter - m.thresholds.Jitter; excess > 0 {
		score -= math.Min(float64(excess/time.Millisecond)/2, 20)
	}
	if excess := stats.Latency - m.thresholds.Latency; excess > 0 {
		score -= math.Min(float64(excess/time.Millisecond)/10, 20)
	}
	return math.Max(0, math.Min(100, score))
}

// HandlePackets scores a batch and forwards the result to reporter.
// Batches without reception reports are ignored.
func (m *QualityMonitor) HandlePackets(ctx context.Context, reporter QualityReporter, participantID domain.ParticipantID, packets []rtcp.Packet) (float64, error) {
	stats, ok := m.Collect(packets)
	if !ok {
		return 0, nil
	}
	quality := m.Score(stats)
	m.logger.Debugw("Connection quality sampled",
		"participant_id", participantID,
		"packet_loss", stats.PacketLoss,
		"jitter", stats.Jitter,
		"latency", stats.Latency,
		"quality", quality,
	)
	if m.onSample != nil {
		m.onSample(quality)
	}
	if err := reporter.ReportConnectionQuality(ctx, participantID, quality); err != nil {
		return quality, err
	}
	return quality, nil
}

// HandleRaw decodes a compound RTCP packet and handles it like HandlePackets.
func (m *QualityMonitor) HandleRaw(ctx context.Context, reporter QualityReporter, participantID domain.ParticipantID, data []byte) (float64, error) {
	packets, err := rtcp.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("invalid rtcp payload: %w", err)
	}
	return m.HandlePackets(ctx, reporter, participantID, packets)
}
