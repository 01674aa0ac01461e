package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bryanchriswhite/histocam/internal/capture"
	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	opens   int
	closes  int
	reads   int
	open    bool
	openErr error
	readErr error
	empty   bool
	short   bool
	onRead  func()
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.opens++
	f.open = true
	return nil
}

func (f *fakeSource) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSource) Read() (*frame.Buffer, error) {
	f.mu.Lock()
	f.reads++
	onRead, readErr, empty, short, open := f.onRead, f.readErr, f.empty, f.short, f.open
	f.mu.Unlock()

	if onRead != nil {
		onRead()
	}
	if !open {
		return nil, capture.ErrSourceClosed
	}
	if readErr != nil {
		return nil, readErr
	}
	if empty {
		return &frame.Buffer{}, nil
	}
	if short {
		return &frame.Buffer{Width: 4, Height: 2, Channels: 3, Pix: make([]byte, 5)}, nil
	}
	buf := frame.New(4, 2, 3)
	buf.Fill(10, 20, 30)
	return buf, nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.open = false
	return nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) counts() (opens, closes, reads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes, f.reads
}

type recordingSink struct {
	mu     sync.Mutex
	images map[Slot][]*frame.Buffer
}

func newRecordingSink() *recordingSink {
	return &recordingSink{images: make(map[Slot][]*frame.Buffer)}
}

func (r *recordingSink) Display(slot Slot, img *frame.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[slot] = append(r.images[slot], img)
}

func (r *recordingSink) count(slot Slot) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.images[slot])
}

func (r *recordingSink) last(slot Slot) *frame.Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	imgs := r.images[slot]
	if len(imgs) == 0 {
		return nil
	}
	return imgs[len(imgs)-1]
}

func fastOptions() Options {
	return Options{Period: 5 * time.Millisecond}
}

func TestStartTwiceOpensOnce(t *testing.T) {
	src := &fakeSource{}
	s := NewScheduler(src, nil, fastOptions())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	opens, _, _ := src.counts()
	assert.Equal(t, 1, opens)
	assert.Equal(t, Running, s.State())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	src := &fakeSource{}
	s := NewScheduler(src, nil, fastOptions())

	require.NoError(t, s.Stop())
	assert.Equal(t, Idle, s.State())

	_, closes, _ := src.counts()
	assert.Equal(t, 0, closes)
}

func TestStopThenStartReopens(t *testing.T) {
	src := &fakeSource{}
	s := NewScheduler(src, nil, fastOptions())

	require.NoError(t, s.Start(context.Background()))
	first := s.Status().SessionID
	require.NoError(t, s.Stop())
	assert.Equal(t, Stopped, s.State())

	// a second Stop does nothing
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background()))
	second := s.Status().SessionID
	assert.Equal(t, Running, s.State())
	assert.NotEqual(t, first, second)

	require.NoError(t, s.Stop())
	opens, closes, _ := src.counts()
	assert.Equal(t, 2, opens)
	assert.Equal(t, 2, closes)
}

func TestOpenFailureKeepsState(t *testing.T) {
	src := &fakeSource{openErr: errors.New("device busy")}
	s := NewScheduler(src, nil, fastOptions())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Equal(t, Idle, s.State())

	time.Sleep(20 * time.Millisecond)
	_, _, reads := src.counts()
	assert.Equal(t, 0, reads, "no loop should run after a failed start")

	// from Stopped the state is kept as well
	src.set(func(f *fakeSource) { f.openErr = nil })
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	src.set(func(f *fakeSource) { f.openErr = capture.ErrDeviceUnavailable })
	err = s.Start(context.Background())
	assert.ErrorIs(t, err, capture.ErrDeviceUnavailable)
	assert.Equal(t, Stopped, s.State())
}

func TestReadFailureSkipsTick(t *testing.T) {
	src := &fakeSource{readErr: errors.New("unplugged")}
	sink := newRecordingSink()
	s := NewScheduler(src, sink, fastOptions())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.Status().Skipped >= 3
	}, time.Second, 5*time.Millisecond)

	st := s.Status()
	assert.Equal(t, Running, st.State)
	assert.Zero(t, st.Ticks)
	assert.Zero(t, sink.count(SlotFrame))

	// the session survives and recovers once reads succeed
	src.set(func(f *fakeSource) { f.readErr = nil })
	require.Eventually(t, func() bool {
		return sink.count(SlotFrame) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyFrameSkipsTick(t *testing.T) {
	src := &fakeSource{empty: true}
	sink := newRecordingSink()
	s := NewScheduler(src, sink, fastOptions())

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return s.Status().Skipped >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, sink.count(SlotHistogram))
}

func TestInvalidFrameSkipsTick(t *testing.T) {
	for _, grayscale := range []bool{false, true} {
		src := &fakeSource{short: true}
		sink := newRecordingSink()
		opts := fastOptions()
		opts.Grayscale = grayscale
		s := NewScheduler(src, sink, opts)

		require.NoError(t, s.Start(context.Background()))

		require.Eventually(t, func() bool {
			return s.Status().Skipped >= 2
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, Running, s.State())
		assert.Zero(t, sink.count(SlotFrame))

		src.set(func(f *fakeSource) { f.short = false })
		require.Eventually(t, func() bool {
			return sink.count(SlotHistogram) > 0
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, s.Stop())
	}
}

func TestFirstTickIsImmediate(t *testing.T) {
	src := &fakeSource{}
	sink := newRecordingSink()
	s := NewScheduler(src, sink, Options{Period: time.Hour})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return sink.count(SlotFrame) == 1 && sink.count(SlotHistogram) == 1
	}, time.Second, 5*time.Millisecond)

	chart := sink.last(SlotHistogram)
	assert.Equal(t, 150, chart.Width)
	assert.Equal(t, 150, chart.Height)
	assert.Equal(t, 3, chart.Channels)
	assert.Equal(t, 3, sink.last(SlotFrame).Channels)
}

func TestGrayscaleToggleTakesEffectNextTick(t *testing.T) {
	src := &fakeSource{open: true}
	sink := newRecordingSink()
	s := NewScheduler(src, sink, fastOptions())

	// flipping the flag mid-read must not affect the frame being read
	src.onRead = func() { s.SetGrayscale(true) }

	events := s.Subscribe()
	defer s.Unsubscribe(events)

	sess := newSession(src.Name(), newDispatcher(sink, 4, &s.dropped))
	s.tick(sess)
	s.tick(sess)
	sess.dispatch.close()

	first := <-events
	second := <-events
	assert.False(t, first.Grayscale)
	assert.Len(t, first.Channels, 3)
	assert.True(t, second.Grayscale)
	assert.Len(t, second.Channels, 1)

	require.Equal(t, 2, sink.count(SlotFrame))
	assert.Equal(t, 1, sink.last(SlotFrame).Channels)
}

func TestBlockedSinkDoesNotBlockTicks(t *testing.T) {
	src := &fakeSource{}
	release := make(chan struct{})
	var delivered atomic.Int64
	sink := SinkFunc(func(Slot, *frame.Buffer) {
		<-release
		delivered.Add(1)
	})
	s := NewScheduler(src, sink, fastOptions())

	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		st := s.Status()
		return st.Ticks >= 10 && st.Dropped > 0
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, s.Stop())
	assert.Positive(t, delivered.Load())
}

func TestStopClosesSourceOnce(t *testing.T) {
	src := &fakeSource{}
	s := NewScheduler(src, nil, fastOptions())

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return s.Status().Ticks > 0
	}, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
		}()
	}
	wg.Wait()

	_, closes, reads := src.counts()
	assert.Equal(t, 1, closes)
	assert.Equal(t, Stopped, s.State())

	// no reads after Stop returned
	time.Sleep(20 * time.Millisecond)
	_, _, after := src.counts()
	assert.Equal(t, reads, after)
}

func TestStatusSnapshot(t *testing.T) {
	src := &fakeSource{}
	s := NewScheduler(src, nil, Options{Period: 250 * time.Millisecond, Grayscale: true})

	st := s.Status()
	assert.Equal(t, Idle, st.State)
	assert.Empty(t, st.SessionID)
	assert.Nil(t, st.StartedAt)
	assert.True(t, st.Grayscale)
	assert.Equal(t, int64(250), st.PeriodMs)
	assert.Equal(t, "fake", st.Source)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	st = s.Status()
	assert.Equal(t, Running, st.State)
	assert.NotEmpty(t, st.SessionID)
	require.NotNil(t, st.StartedAt)
	assert.WithinDuration(t, time.Now(), *st.StartedAt, time.Second)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewScheduler(&fakeSource{}, nil, fastOptions())
	ch := s.Subscribe()
	s.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)

	// unknown channels are ignored
	s.Unsubscribe(make(chan TickEvent))
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())

	text, err := Running.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "running", string(text))
}
