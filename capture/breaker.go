package capture

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/swdee/go-motionwatch/internal/logger"
	"gocv.io/x/gocv"
)

// BreakerConfig controls when a failing sink is bypassed
type BreakerConfig struct {
	Name string
	// Failures is the number of consecutive failed saves that open the
	// breaker
	Failures uint32
	// Timeout is how long the breaker stays open before a trial save
	Timeout time.Duration
}

// BreakerSink wraps a Sink so that repeated failures, such as a full disk,
// stop further save attempts for a while instead of failing every frame.
// While open, Save returns gobreaker.ErrOpenState
type BreakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker[Capture]
}

// NewBreakerSink returns sink guarded by a circuit breaker, state changes
// are logged with the logger carried by ctx
func NewBreakerSink(ctx context.Context, sink Sink, cfg BreakerConfig) *BreakerSink {

	log := logger.FromContext(ctx)

	if cfg.Name == "" {
		cfg.Name = "capture"
	}

	if cfg.Failures == 0 {
		cfg.Failures = 5
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Capture breaker state changed", "name", name,
				"from", from.String(), "to", to.String())
		},
	}

	return &BreakerSink{
		sink: sink,
		cb:   gobreaker.NewCircuitBreaker[Capture](settings),
	}
}

// Save forwards to the wrapped sink unless the breaker is open
func (b *BreakerSink) Save(ctx context.Context, frame gocv.Mat, at time.Time) (Capture, error) {
	return b.cb.Execute(func() (Capture, error) {
		return b.sink.Save(ctx, frame, at)
	})
}

// State returns the breaker state name
func (b *BreakerSink) State() string {
	return b.cb.State().String()
}
