package reliability

import (
	"context"

	"telecare/internal/core/domain"
	"telecare/internal/core/ports"
	"telecare/pkg/circuitbreaker"
	"telecare/pkg/errors"
	"telecare/pkg/retry"

	"go.uber.org/zap"
)

// SinkWrapper adds retry and a circuit breaker to a ledger mirror. The ledger
// itself never depends on the mirror succeeding.
type SinkWrapper struct {
	sink    ports.ComplianceEventSink
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

var _ ports.ComplianceEventSink = (*SinkWrapper)(nil)

func NewSinkWrapper(
	sink ports.ComplianceEventSink,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *SinkWrapper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &SinkWrapper{
		sink:    sink,
		retry:   withPermanentErrors(retryConfig),
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("Ledger mirror circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func (w *SinkWrapper) Append(ctx context.Context, event domain.ComplianceEvent) error {
	return w.breaker.Execute(func() error {
		return retry.Retry(ctx, w.retry, func() error {
			return w.sink.Append(ctx, event)
		})
	})
}

// State exposes the breaker state for health reporting.
func (w *SinkWrapper) State() circuitbreaker.State {
	return w.breaker.State()
}

// ArchiveWrapper retries archive writes. Reads pass straight through.
type ArchiveWrapper struct {
	ports.ComplianceArchive
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
}

var _ ports.ComplianceArchive = (*ArchiveWrapper)(nil)

func NewArchiveWrapper(archive ports.ComplianceArchive, retryConfig retry.Config, cbConfig circuitbreaker.Config) *ArchiveWrapper {
	return &ArchiveWrapper{
		ComplianceArchive: archive,
		retry:             withPermanentErrors(retryConfig),
		breaker:           circuitbreaker.New(cbConfig),
	}
}

func (w *ArchiveWrapper) Store(ctx context.Context, export *domain.ComplianceExport) error {
	return w.breaker.Execute(func() error {
		return retry.Retry(ctx, w.retry, func() error {
			return w.ComplianceArchive.Store(ctx, export)
		})
	})
}

// withPermanentErrors stops retrying validation and permission failures.
func withPermanentErrors(cfg retry.Config) retry.Config {
	next := cfg.ShouldRetry
	cfg.ShouldRetry = func(err error) bool {
		if te := errors.GetTelehealthError(err); te != nil && te.Type != errors.TypeTechnical {
			return false
		}
		return next == nil || next(err)
	}
	return cfg
}
