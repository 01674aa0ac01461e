// Package pipeline runs the capture loop: on every tick it reads one frame,
// optionally converts it to grayscale, computes the per-channel histograms and
// hands the frame and the rendered chart to a DisplaySink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/bryanchriswhite/histocam/internal/config"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
)

const defaultPeriod = 100 * time.Millisecond

// Options configures a Scheduler
type Options struct {
	Period      time.Duration
	ChartWidth  int
	ChartHeight int
	QueueSize   int
	Grayscale   bool
}

// OptionsFromConfig builds scheduler options from the capture and chart sections
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Period:      time.Duration(cfg.Capture.PeriodMs) * time.Millisecond,
		ChartWidth:  cfg.Chart.Width,
		ChartHeight: cfg.Chart.Height,
		Grayscale:   cfg.Capture.Grayscale,
	}
}

func (o Options) withDefaults() Options {
	if o.Period <= 0 {
		o.Period = defaultPeriod
	}
	if o.ChartWidth <= 0 {
		o.ChartWidth = 150
	}
	if o.ChartHeight <= 0 {
		o.ChartHeight = 150
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	return o
}

// ChannelSummary describes one channel histogram in a TickEvent
type ChannelSummary struct {
	Channel int      `json:"channel"`
	Mode    int      `json:"mode"`
	Mean    float64  `json:"mean"`
	Bins    [256]int `json:"bins"`
}

// TickEvent is sent to subscribers after every processed frame
type TickEvent struct {
	Session   string           `json:"session"`
	Seq       uint64           `json:"seq"`
	Time      time.Time        `json:"time"`
	Grayscale bool             `json:"grayscale"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Channels  []ChannelSummary `json:"channels"`
}

// Status is a point-in-time snapshot of the scheduler
type Status struct {
	State     State      `json:"state" yaml:"state"`
	SessionID string     `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Source    string     `json:"source" yaml:"source"`
	Grayscale bool       `json:"grayscale" yaml:"grayscale"`
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	PeriodMs  int64      `json:"period_ms" yaml:"period_ms"`
	Ticks     uint64     `json:"ticks" yaml:"ticks"`
	Skipped   uint64     `json:"skipped" yaml:"skipped"`
	Dropped   uint64     `json:"dropped" yaml:"dropped"`
}

// Scheduler drives the fixed-rate capture loop over a single FrameSource.
//
// Start and Stop are serialized by mu. The loop goroutine never takes mu, so
// Stop can hold it while waiting for the in-flight tick to finish.
type Scheduler struct {
	source capture.FrameSource
	sink   DisplaySink
	opts   Options

	mu      sync.Mutex
	state   State
	session *Session

	grayscale atomic.Bool
	ticks     atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64

	obsMu     sync.RWMutex
	observers []chan TickEvent
}

// NewScheduler creates an idle scheduler. A nil sink discards output.
func NewScheduler(source capture.FrameSource, sink DisplaySink, opts Options) *Scheduler {
	if sink == nil {
		sink = SinkFunc(func(Slot, *frame.Buffer) {})
	}
	s := &Scheduler{
		source: source,
		sink:   sink,
		opts:   opts.withDefaults(),
		state:  Idle,
	}
	s.grayscale.Store(opts.Grayscale)
	return s
}

// Start opens the source and starts the loop. Starting a running scheduler
// is a no-op. If the source cannot be opened the state is left unchanged and
// the error wraps capture.ErrDeviceUnavailable.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		return nil
	}

	log := logger.WithComponent("scheduler")

	if err := s.source.Open(ctx); err != nil {
		if !errors.Is(err, capture.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
		}
		log.Error().Err(err).Str("source", s.source.Name()).Msg("Failed to open source")
		return fmt.Errorf("start capture: %w", err)
	}

	s.ticks.Store(0)
	s.skipped.Store(0)
	s.dropped.Store(0)

	sess := newSession(s.source.Name(), newDispatcher(s.sink, s.opts.QueueSize, &s.dropped))
	s.session = sess
	s.state = Running

	go s.loop(sess)

	logger.WithSession("scheduler", sess.ID).Info().
		Str("source", sess.Source).
		Dur("period", s.opts.Period).
		Bool("grayscale", s.grayscale.Load()).
		Msg("Capture started")
	return nil
}

// Stop ends the session: it waits for the in-flight tick, flushes pending
// deliveries and closes the source. Stopping a scheduler that is not running
// is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return nil
	}

	sess := s.session
	s.state = Stopped

	close(sess.stop)
	<-sess.done
	sess.dispatch.close()

	err := s.source.Close()

	log := logger.WithSession("scheduler", sess.ID)
	if err != nil {
		log.Warn().Err(err).Msg("Error closing source")
	}
	log.Info().
		Uint64("ticks", s.ticks.Load()).
		Uint64("skipped", s.skipped.Load()).
		Uint64("dropped", s.dropped.Load()).
		Dur("duration", time.Since(sess.StartedAt)).
		Msg("Capture stopped")

	if err != nil {
		return fmt.Errorf("close source: %w", err)
	}
	return nil
}

// SetGrayscale sets the conversion flag; it takes effect on the next tick
func (s *Scheduler) SetGrayscale(enabled bool) {
	if s.grayscale.Swap(enabled) != enabled {
		logger.WithComponent("scheduler").Info().Bool("grayscale", enabled).Msg("Grayscale mode changed")
	}
}

// Grayscale reports the conversion flag
func (s *Scheduler) Grayscale() bool {
	return s.grayscale.Load()
}

// State returns the lifecycle state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the scheduler and its latest session
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:     s.state,
		Source:    s.source.Name(),
		Grayscale: s.grayscale.Load(),
		PeriodMs:  s.opts.Period.Milliseconds(),
		Ticks:     s.ticks.Load(),
		Skipped:   s.skipped.Load(),
		Dropped:   s.dropped.Load(),
	}
	if s.session != nil {
		started := s.session.StartedAt
		st.SessionID = s.session.ID
		st.StartedAt = &started
	}
	return st
}

// Subscribe adds a listener for tick events
func (s *Scheduler) Subscribe() chan TickEvent {
	ch := make(chan TickEvent, 10)
	s.obsMu.Lock()
	s.observers = append(s.observers, ch)
	s.obsMu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (s *Scheduler) Unsubscribe(ch chan TickEvent) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	for i, observer := range s.observers {
		if observer == ch {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Scheduler) notify(ev TickEvent) {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()

	for _, observer := range s.observers {
		select {
		case observer <- ev:
		default:
			// Skip if channel is full
		}
	}
}

// loop runs ticks until the session is stopped. The first tick is immediate.
func (s *Scheduler) loop(sess *Session) {
	defer close(sess.done)

	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()

	s.tick(sess)
	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C:
			if sess.stopping() {
				return
			}
			s.tick(sess)
		}
	}
}

// tick processes one frame. A failed read, an empty frame or a buffer whose
// samples do not match its size skips the tick.
func (s *Scheduler) tick(sess *Session) {
	grayscale := s.grayscale.Load()

	buf, err := s.source.Read()
	if err != nil || buf.Empty() {
		s.skipped.Add(1)
		logger.WithSession("scheduler", sess.ID).Debug().Err(err).Msg("Frame read failed, skipping tick")
		return
	}
	if err := buf.Validate(); err != nil {
		s.skipped.Add(1)
		logger.WithSession("scheduler", sess.ID).Debug().Err(err).Msg("Invalid frame, skipping tick")
		return
	}

	result := Process(buf, grayscale, s.opts.ChartWidth, s.opts.ChartHeight)
	seq := s.ticks.Add(1)

	if !sess.dispatch.enqueue(result) {
		logger.WithSession("scheduler", sess.ID).Debug().Uint64("seq", seq).Msg("Display sink busy, dropped frame")
	}

	s.notify(newTickEvent(sess.ID, seq, result))
}

func newTickEvent(sessionID string, seq uint64, r *Result) TickEvent {
	ev := TickEvent{
		Session:   sessionID,
		Seq:       seq,
		Time:      time.Now(),
		Grayscale: r.Grayscale,
		Width:     r.Frame.Width,
		Height:    r.Frame.Height,
		Channels:  make([]ChannelSummary, len(r.Histograms)),
	}
	for i := range r.Histograms {
		h := &r.Histograms[i]
		ev.Channels[i] = ChannelSummary{
			Channel: h.Channel,
			Mode:    h.Mode(),
			Mean:    h.Mean(),
			Bins:    h.Bins,
		}
	}
	return ev
}
