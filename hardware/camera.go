package hardware

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ilievs/panelagent/monitor"
)

var (
	ErrNoCamera        = errors.New("no camera configured")
	ErrCameraNotLocked = errors.New("camera not locked")
)

// StreamCamera reads fixed size grey frames from a raw video stream, such as a
// FIFO fed by `ffmpeg -f v4l2 -i /dev/video0 -pix_fmt gray -f rawvideo`.
type StreamCamera struct {
	open   func() (io.ReadCloser, error)
	width  int
	height int
	logger *slog.Logger

	mu      sync.Mutex
	stream  io.ReadCloser
	running bool
	done    chan struct{}
}

func NewStreamCamera(path string, width, height int, logger *slog.Logger) *StreamCamera {
	var open func() (io.ReadCloser, error)
	if path != "" {
		open = func() (io.ReadCloser, error) { return os.Open(path) }
	}
	return newStreamCamera(open, width, height, logger)
}

func newStreamCamera(open func() (io.ReadCloser, error), width, height int, logger *slog.Logger) *StreamCamera {
	return &StreamCamera{
		open:   open,
		width:  width,
		height: height,
		logger: logger.With("component", "camera"),
	}
}

func (c *StreamCamera) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return ErrNoCamera
	}
	if c.stream != nil {
		return nil
	}
	stream, err := c.open()
	if err != nil {
		return err
	}
	c.stream = stream
	return nil
}

func (c *StreamCamera) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

// StartPreview reads frames until StopPreview is called. When the stream ends on
// its own, onEnd receives the read error and the camera must be unlocked and
// locked again before the next preview.
func (c *StreamCamera) StartPreview(onFrame func(*monitor.LumaData), onEnd func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return ErrCameraNotLocked
	}
	if c.running {
		return nil
	}
	c.running = true
	c.done = make(chan struct{})
	go c.readFrames(c.stream, onFrame, onEnd, c.done)
	return nil
}

// StopPreview closes the stream to unblock the reader and waits for it to exit.
// The camera has to be locked again before the next preview.
func (c *StreamCamera) StopPreview() {
	c.mu.Lock()
	done := c.done
	if c.running {
		c.running = false
		if c.stream != nil {
			c.stream.Close()
			c.stream = nil
		}
	}
	c.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (c *StreamCamera) readFrames(stream io.Reader, onFrame func(*monitor.LumaData), onEnd func(error), done chan struct{}) {
	defer close(done)

	err := c.pump(stream, onFrame)

	c.mu.Lock()
	// a cleared running flag means StopPreview closed the stream
	ended := c.running && c.done == done
	if ended {
		c.running = false
	}
	c.mu.Unlock()

	if ended {
		c.logger.Warn("camera stream ended", "error", err)
		if onEnd != nil {
			onEnd(err)
		}
	}
}

func (c *StreamCamera) pump(stream io.Reader, onFrame func(*monitor.LumaData)) error {
	frame := make([]byte, c.width*c.height)
	for {
		if _, err := io.ReadFull(stream, frame); err != nil {
			return err
		}
		luma, err := monitor.ExtractLuma(frame, c.width, c.height)
		if err != nil {
			return err
		}
		onFrame(luma)
	}
}
