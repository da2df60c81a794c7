package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV stores 16-bit mono PCM at sampleRate as a WAV file.
func WriteWAV(path string, sampleRate int, pcm []int16) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create wav %q: %w", path, err)
	}
	defer file.Close()

	data := make([]int, len(pcm))
	for i, sample := range pcm {
		data[i] = int(sample)
	}
	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   data,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// FileSource replays a WAV file as float32 blocks, followed by silence so a
// trailing utterance can close, then io.EOF.
type FileSource struct {
	format  Format
	samples []float32
	pos     int
}

// OpenWAV decodes path fully. trailingSilence is appended after the audio.
func OpenWAV(path string, blockFrames int, trailingSilence time.Duration) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav %q: %w", path, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("open wav %q: not a valid wav file", path)
	}
	buffer, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav %q: %w", path, err)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		return nil, errors.New("wav header is missing bit depth or channel count")
	}

	format := Format{
		SampleRate:     int(dec.SampleRate),
		Channels:       int(dec.NumChans),
		FramesPerBlock: blockFrames,
	}
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("wav %q: %w", path, err)
	}

	scale := float32(int64(1) << (dec.BitDepth - 1))
	silence := int(trailingSilence.Seconds()*float64(format.SampleRate)) * format.Channels
	samples := make([]float32, len(buffer.Data), len(buffer.Data)+silence)
	for i, v := range buffer.Data {
		samples[i] = float32(v) / scale
	}
	samples = append(samples, make([]float32, silence)...)

	return &FileSource{format: format, samples: samples}, nil
}

// Format returns the decoded file format.
func (s *FileSource) Format() Format {
	return s.format
}

// Read copies at most one block of whole frames into dst.
func (s *FileSource) Read(dst []float32) (int, error) {
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}

	want := len(dst)
	if block := s.format.BlockSamples(); want > block {
		want = block
	}
	want = want / s.format.Channels * s.format.Channels

	n := copy(dst[:want], s.samples[s.pos:])
	s.pos += n
	return n, nil
}
