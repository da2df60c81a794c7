// Package audio provides live and file-backed float32 sample sources.
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Format describes interleaved float32 blocks delivered by a source.
type Format struct {
	SampleRate     int
	Channels       int
	FramesPerBlock int
}

// Validate rejects formats no converter can consume.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0 (got %d)", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be > 0 (got %d)", f.Channels)
	}
	if f.FramesPerBlock <= 0 {
		return fmt.Errorf("frames per block must be > 0 (got %d)", f.FramesPerBlock)
	}
	return nil
}

// BlockSamples is the interleaved sample count of one block.
func (f Format) BlockSamples() int {
	return f.FramesPerBlock * f.Channels
}

// ErrMonitorClosed is returned by Write after Close.
var ErrMonitorClosed = errors.New("monitor closed")

// Monitor is a bounded ring of interleaved frames filled by a capture
// callback and drained by the recognizer loop. When full, the oldest
// whole frames are overwritten and counted as dropped.
type Monitor struct {
	format Format

	mu      sync.Mutex
	buf     []float32
	start   int
	size    int
	dropped int64
	written int64
	closed  bool
}

// NewMonitor sizes the ring to hold capacityFrames frames.
func NewMonitor(format Format, capacityFrames int) (*Monitor, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if capacityFrames < format.FramesPerBlock {
		capacityFrames = format.FramesPerBlock
	}
	return &Monitor{
		format: format,
		buf:    make([]float32, capacityFrames*format.Channels),
	}, nil
}

// Format returns the monitor's block format.
func (m *Monitor) Format() Format {
	return m.format
}

// Write appends interleaved samples. A trailing partial frame is ignored.
func (m *Monitor) Write(samples []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrMonitorClosed
	}

	ch := m.format.Channels
	usable := len(samples) / ch * ch
	in := samples[:usable]

	// Only the newest capacity worth of input can survive.
	if len(in) > len(m.buf) {
		skipped := len(in) - len(m.buf)
		m.dropped += int64(skipped / ch)
		in = in[skipped:]
	}

	overflow := m.size + len(in) - len(m.buf)
	if overflow > 0 {
		m.start = (m.start + overflow) % len(m.buf)
		m.size -= overflow
		m.dropped += int64(overflow / ch)
	}

	end := (m.start + m.size) % len(m.buf)
	n := copy(m.buf[end:], in)
	copy(m.buf, in[n:])
	m.size += len(in)
	m.written += int64(usable / ch)

	return len(samples), nil
}

// Read moves up to len(dst) samples, rounded down to whole frames, into dst.
// It never blocks. After Close it drains what is left and then returns io.EOF.
func (m *Monitor) Read(dst []float32) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.format.Channels
	want := len(dst) / ch * ch
	if want > m.size {
		want = m.size
	}
	if want == 0 {
		if m.closed && m.size == 0 {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := copy(dst[:want], m.buf[m.start:])
	copy(dst[n:want], m.buf)
	m.start = (m.start + want) % len(m.buf)
	m.size -= want
	return want, nil
}

// Buffered returns how many frames are waiting to be read.
func (m *Monitor) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size / m.format.Channels
}

// Dropped returns how many frames were overwritten before being read.
func (m *Monitor) Dropped() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Written returns how many frames were accepted in total.
func (m *Monitor) Written() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

// Close stops accepting writes; buffered frames remain readable.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
