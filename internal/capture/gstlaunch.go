package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/histocam/internal/frame"
	"github.com/bryanchriswhite/histocam/internal/logger"
)

const gstLaunchBinary = "gst-launch-1.0"

func init() {
	Register("gst-launch", func(opts Options) (FrameSource, error) {
		return NewGstLaunchSource(opts), nil
	})
}

// GstLaunchSource captures from a video device by running gst-launch-1.0 as
// a subprocess and reading raw BGR frames from its stdout. This keeps
// GStreamer out of the process and needs no cgo.
type GstLaunchSource struct {
	opts   Options
	binary string

	mu         sync.Mutex
	cmd        *exec.Cmd
	running    bool
	exited     chan struct{}
	exitErr    error
	frameReady chan struct{}
	latest     *frame.Buffer
	latestSeq  uint64
	readSeq    uint64
	stderrTail []string
}

// NewGstLaunchSource creates an unopened source for the device in opts
func NewGstLaunchSource(opts Options) *GstLaunchSource {
	return &GstLaunchSource{
		opts:   opts.withDefaults(),
		binary: gstLaunchBinary,
	}
}

// Name returns the source name
func (g *GstLaunchSource) Name() string {
	if g.opts.Device == "" {
		return "gst-launch (autovideosrc)"
	}
	return "gst-launch (" + g.opts.Device + ")"
}

// rowStride is GStreamer's row size for packed 24-bit formats, padded to 4 bytes
func rowStride(width int) int {
	return (width*3 + 3) &^ 3
}

// pipelineArgs builds the gst-launch argument list:
// source -> videoconvert -> videoscale -> BGR caps -> fdsink on stdout
func pipelineArgs(opts Options) []string {
	args := []string{"-q"}
	if opts.Device == "" {
		args = append(args, "autovideosrc")
	} else {
		args = append(args, "v4l2src", "device="+opts.Device)
	}

	caps := fmt.Sprintf("video/x-raw,format=BGR,width=%d,height=%d", opts.Width, opts.Height)
	if opts.Framerate > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", opts.Framerate)
	}

	return append(args,
		"!", "videoconvert",
		"!", "videoscale",
		"!", caps,
		"!", "fdsink", "fd=1", "sync=false",
	)
}

// Open starts the subprocess and waits briefly for the first frame so that a
// missing or busy device is reported here rather than on the first Read.
func (g *GstLaunchSource) Open(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil
	}

	log := logger.WithComponent("gst-launch")

	path, err := exec.LookPath(g.binary)
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrDeviceUnavailable, g.binary, err)
	}
	if strings.HasPrefix(g.opts.Device, "/dev/") {
		if _, err := os.Stat(g.opts.Device); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	args := pipelineArgs(g.opts)
	log.Debug().Strs("args", args).Msg("Starting gst-launch subprocess")

	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %v", ErrDeviceUnavailable, g.binary, err)
	}

	g.cmd = cmd
	g.running = true
	g.exited = make(chan struct{})
	g.exitErr = nil
	g.frameReady = make(chan struct{}, 1)
	g.latest = nil
	g.latestSeq, g.readSeq = 0, 0
	g.stderrTail = nil

	stderrDone := make(chan struct{})
	go g.logStderr(stderr, stderrDone)
	go g.readFrames(cmd, stdout, stderrDone, g.exited, g.frameReady)

	log.Info().Str("device", g.opts.Device).Int("pid", cmd.Process.Pid).Msg("gst-launch subprocess started")

	// Wait for the first frame or an early exit
	exited, ready := g.exited, g.frameReady
	g.mu.Unlock()
	timer := time.NewTimer(4 * g.opts.ReadTimeout)
	defer timer.Stop()

	var openErr error
	select {
	case <-ready:
		// put the signal back for the first Read
		select {
		case ready <- struct{}{}:
		default:
		}
	case <-exited:
		openErr = fmt.Errorf("%w: gst-launch exited: %s", ErrDeviceUnavailable, g.stderrSummary())
	case <-timer.C:
		log.Warn().Dur("waited", 4*g.opts.ReadTimeout).Msg("No frame yet, keeping device open")
	case <-ctx.Done():
		openErr = ctx.Err()
	}
	g.mu.Lock()

	if openErr != nil {
		g.killLocked()
		return openErr
	}
	return nil
}

// readFrames reads fixed-size frames until the subprocess closes stdout, then
// reaps it once stderr has been drained.
func (g *GstLaunchSource) readFrames(cmd *exec.Cmd, stdout io.Reader, stderrDone <-chan struct{}, exited chan struct{}, ready chan struct{}) {
	log := logger.WithComponent("gst-launch")

	width, height := g.opts.Width, g.opts.Height
	stride := rowStride(width)
	frameSize := stride * height
	reader := bufio.NewReaderSize(stdout, frameSize*2)
	raw := make([]byte, frameSize)
	frameCount := 0

	for {
		if _, err := io.ReadFull(reader, raw); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Error().Err(err).Msg("Error reading frame")
			}
			break
		}

		// fresh buffer per frame; readers take ownership of it
		buf := frame.New(width, height, 3)
		rowBytes := width * 3
		for y := 0; y < height; y++ {
			copy(buf.Pix[y*rowBytes:(y+1)*rowBytes], raw[y*stride:])
		}

		g.mu.Lock()
		g.latest = buf
		g.latestSeq++
		g.mu.Unlock()

		select {
		case ready <- struct{}{}:
		default:
		}
		frameCount++
	}

	// Wait closes the pipes, so stderr must be fully read first
	<-stderrDone
	err := cmd.Wait()
	g.mu.Lock()
	g.exitErr = err
	g.mu.Unlock()
	close(exited)

	log.Debug().Int("frames", frameCount).AnErr("exit", err).Msg("gst-launch output closed")
}

// logStderr logs subprocess output and keeps the last few lines for errors
func (g *GstLaunchSource) logStderr(stderr io.Reader, done chan<- struct{}) {
	defer close(done)
	log := logger.WithComponent("gst-launch")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		g.mu.Lock()
		g.stderrTail = append(g.stderrTail, line)
		if len(g.stderrTail) > 5 {
			g.stderrTail = g.stderrTail[1:]
		}
		g.mu.Unlock()

		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

func (g *GstLaunchSource) stderrSummary() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.stderrTail) == 0 {
		if g.exitErr != nil {
			return g.exitErr.Error()
		}
		return "no output"
	}
	return strings.Join(g.stderrTail, "; ")
}

// IsOpen reports whether the subprocess is running
func (g *GstLaunchSource) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return false
	}
	select {
	case <-g.exited:
		return false
	default:
		return true
	}
}

// Read returns the next frame newer than the previously returned one,
// waiting at most the configured read timeout.
func (g *GstLaunchSource) Read() (*frame.Buffer, error) {
	timer := time.NewTimer(g.opts.ReadTimeout)
	defer timer.Stop()

	for {
		g.mu.Lock()
		if !g.running {
			g.mu.Unlock()
			return nil, ErrSourceClosed
		}
		if g.latestSeq > g.readSeq {
			g.readSeq = g.latestSeq
			buf := g.latest
			g.mu.Unlock()
			return buf, nil
		}
		exited, ready := g.exited, g.frameReady
		g.mu.Unlock()

		select {
		case <-ready:
		case <-exited:
			return nil, fmt.Errorf("%w: gst-launch exited: %s", ErrSourceClosed, g.stderrSummary())
		case <-timer.C:
			return nil, ErrNoFrame
		}
	}
}

// Close stops the subprocess
func (g *GstLaunchSource) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.running {
		return nil
	}
	g.killLocked()
	logger.WithComponent("gst-launch").Info().Msg("gst-launch subprocess stopped")
	return nil
}

// killLocked kills the process and waits for the reader to reap it.
// Called with g.mu held; the lock is released while waiting.
func (g *GstLaunchSource) killLocked() {
	cmd, exited := g.cmd, g.exited
	g.running = false
	g.cmd = nil

	if cmd != nil && cmd.Process != nil {
		logger.WithComponent("gst-launch").Debug().Int("pid", cmd.Process.Pid).Msg("Killing gst-launch subprocess")
		cmd.Process.Kill()
	}

	g.mu.Unlock()
	<-exited
	g.mu.Lock()
}
