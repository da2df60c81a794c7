package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
)

const (
	applicationName = "murmur"
	// monitorSeconds is how much unread audio the capture ring holds.
	monitorSeconds = 2
)

// CaptureConfig selects the Pulse source and record format.
type CaptureConfig struct {
	Source      string
	SampleRate  int
	Channels    int
	BlockFrames int
}

// Format returns the block format captured samples are delivered in.
func (c CaptureConfig) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels, FramesPerBlock: c.BlockFrames}
}

// Capture records float32 frames from one Pulse source into a Monitor.
type Capture struct {
	source  string
	monitor *Monitor

	client *pulse.Client
	stream *pulse.RecordStream

	mu      sync.Mutex
	stopped bool
}

// StartCapture connects to Pulse and starts recording into a fresh Monitor.
// An empty or "default" source records from the server's default source.
func StartCapture(ctx context.Context, cfg CaptureConfig) (*Capture, error) {
	format := cfg.Format()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("capture format: %w", err)
	}
	if cfg.Channels > 2 {
		return nil, fmt.Errorf("capture format: channels must be 1 or 2 (got %d)", cfg.Channels)
	}

	monitor, err := NewMonitor(format, cfg.SampleRate*monitorSeconds)
	if err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}

	source, err := resolveSource(client, cfg.Source)
	if err != nil {
		client.Close()
		return nil, err
	}

	capture := &Capture{
		source:  source.ID(),
		monitor: monitor,
		client:  client,
	}

	layout := pulse.RecordMono
	if cfg.Channels == 2 {
		layout = pulse.RecordStereo
	}

	stream, err := client.NewRecord(
		pulse.Float32Writer(monitor.Write),
		pulse.RecordSource(source),
		layout,
		pulse.RecordSampleRate(cfg.SampleRate),
		pulse.RecordBufferFragmentSize(uint32(format.BlockSamples()*4)),
		pulse.RecordMediaName("murmur recognizer"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, nil
}

// resolveSource maps a configured name to a Pulse source.
func resolveSource(client *pulse.Client, name string) (*pulse.Source, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "default") {
		source, err := client.DefaultSource()
		if err != nil {
			return nil, fmt.Errorf("read default source: %w", err)
		}
		return source, nil
	}

	source, err := client.SourceByID(name)
	if err != nil {
		return nil, fmt.Errorf("resolve source %q: %w", name, err)
	}
	return source, nil
}

// ProbeServer checks that a Pulse server is reachable and has a default source.
func ProbeServer(_ context.Context) (string, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(applicationName))
	if err != nil {
		return "", fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	source, err := client.DefaultSource()
	if err != nil {
		return "", fmt.Errorf("read default source: %w", err)
	}
	return source.ID(), nil
}

// Source returns the Pulse source ID being recorded.
func (c *Capture) Source() string {
	return c.source
}

// Format returns the captured block format.
func (c *Capture) Format() Format {
	return c.monitor.Format()
}

// Read drains captured frames without blocking.
func (c *Capture) Read(dst []float32) (int, error) {
	return c.monitor.Read(dst)
}

// Dropped reports frames lost because the reader fell behind.
func (c *Capture) Dropped() int64 {
	return c.monitor.Dropped()
}

// Stop halts the record stream and closes the monitor exactly once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.monitor.Close()
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}
