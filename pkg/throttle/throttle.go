// Package throttle paces outbound frames to a byte budget per period.
//
// The budget is checked before each send, so a period can exceed
// MaxBytesPerPeriod by at most the size of the last frame sent in it.
// Frames leave in FIFO order.
package throttle

import (
	"sync"
	"time"

	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/pkg/log"
)

// Default pacing values.
const (
	DefaultMaxBytesPerPeriod = 1000 * 1000
	DefaultPeriod            = time.Second / 8
	DefaultTickInterval      = 100 * time.Millisecond
)

// Sender is the channel a Throttler drains into.
type Sender interface {
	Send(frame []byte) error
}

// Observer receives pacing events, typically for metrics.
type Observer interface {
	FrameSent(bytes int)
	QueueDepth(frames int)
}

// Config holds the pacing parameters.
type Config struct {
	MaxBytesPerPeriod int
	Period            time.Duration

	// TickInterval is how often queued frames are retried without a new
	// Send. Zero disables the ticker; Flush must then be called.
	TickInterval time.Duration
}

// DefaultConfig returns the pacing used for peer data channels.
func DefaultConfig() Config {
	return Config{
		MaxBytesPerPeriod: DefaultMaxBytesPerPeriod,
		Period:            DefaultPeriod,
		TickInterval:      DefaultTickInterval,
	}
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Throttler) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(t *Throttler) {
		t.logger = logger
	}
}

// WithObserver sets an observer for sent bytes and queue depth.
func WithObserver(o Observer) Option {
	return func(t *Throttler) {
		t.observer = o
	}
}

// Throttler queues frames and hands them to a Sender within budget.
type Throttler struct {
	mu          sync.Mutex
	ch          Sender
	maxBytes    int
	period      time.Duration
	queue       [][]byte
	sentInPhase int
	phaseStart  time.Time
	closed      bool

	now      func() time.Time
	logger   log.Logger
	observer Observer

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Throttler draining into ch and starts its ticker.
func New(ch Sender, cfg Config, opts ...Option) *Throttler {
	if cfg.MaxBytesPerPeriod <= 0 {
		cfg.MaxBytesPerPeriod = DefaultMaxBytesPerPeriod
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}

	t := &Throttler{
		ch:       ch,
		maxBytes: cfg.MaxBytesPerPeriod,
		period:   cfg.Period,
		now:      time.Now,
		logger:   log.NoopLogger{},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.phaseStart = t.now()

	if cfg.TickInterval > 0 {
		t.wg.Add(1)
		go t.tickLoop(cfg.TickInterval)
	}
	return t
}

// Send enqueues frame and drains as much of the queue as the budget allows.
func (t *Throttler) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return domain.ErrClosed
	}
	t.queue = append(t.queue, frame)
	t.drainLocked()
	return nil
}

// Flush performs one drain attempt, as a tick would.
func (t *Throttler) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.drainLocked()
}

// SetLimit changes the budget. It takes effect on the next drain.
func (t *Throttler) SetLimit(maxBytesPerPeriod int, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if maxBytesPerPeriod > 0 {
		t.maxBytes = maxBytesPerPeriod
	}
	if period > 0 {
		t.period = period
	}
}

// Pending returns the number of queued frames.
func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close stops the ticker and drops queued frames.
func (t *Throttler) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	dropped := len(t.queue)
	t.queue = nil
	close(t.done)
	t.mu.Unlock()

	t.wg.Wait()
	if dropped > 0 {
		t.logger.Debug("throttler closed with queued frames", log.Int("dropped", dropped))
	}
	t.observe(0)
}

func (t *Throttler) tickLoop(interval time.Duration) {
	defer t.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.Flush()
		}
	}
}

func (t *Throttler) drainLocked() {
	if len(t.queue) == 0 {
		return
	}
	if now := t.now(); now.Sub(t.phaseStart) > t.period {
		t.phaseStart = now
		t.sentInPhase = 0
	}

	i := 0
	for i < len(t.queue) && t.sentInPhase < t.maxBytes {
		frame := t.queue[i]
		if err := t.ch.Send(frame); err != nil {
			t.logger.Warn("send failed, dropping frame", log.Int("bytes", len(frame)), log.Err(err))
		} else if t.observer != nil {
			t.observer.FrameSent(len(frame))
		}
		t.sentInPhase += len(frame)
		t.queue[i] = nil
		i++
	}
	t.queue = t.queue[i:]
	t.observe(len(t.queue))
}

func (t *Throttler) observe(depth int) {
	if t.observer != nil {
		t.observer.QueueDepth(depth)
	}
}
