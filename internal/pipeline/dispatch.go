package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/histocam/internal/logger"
)

const (
	defaultQueueSize = 2
	drainTimeout     = time.Second
)

// dispatcher hands results to the sink on its own goroutine so a slow sink
// never delays the next tick
type dispatcher struct {
	sink    DisplaySink
	queue   chan *Result
	done    chan struct{}
	dropped *atomic.Uint64
}

func newDispatcher(sink DisplaySink, size int, dropped *atomic.Uint64) *dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	d := &dispatcher{
		sink:    sink,
		queue:   make(chan *Result, size),
		done:    make(chan struct{}),
		dropped: dropped,
	}
	go d.run()
	return d
}

// enqueue never blocks; a full queue drops r
func (d *dispatcher) enqueue(r *Result) bool {
	select {
	case d.queue <- r:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for r := range d.queue {
		d.sink.Display(SlotFrame, r.Frame)
		d.sink.Display(SlotHistogram, r.Chart)
	}
}

// close stops accepting results and waits for queued ones to be delivered.
// Must only be called once the producer has exited.
func (d *dispatcher) close() {
	close(d.queue)

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-d.done:
	case <-timer.C:
		logger.WithComponent("scheduler").Warn().
			Dur("waited", drainTimeout).
			Msg("Display sink still busy, not waiting for delivery")
	}
}
