package audio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteWAVThenOpenWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utt.wav")
	pcm := []int16{0, 16384, -16384, 32767, -32768, 8192}

	require.NoError(t, WriteWAV(path, 16000, pcm))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	src, err := OpenWAV(path, 4, 0)
	require.NoError(t, err)
	require.Equal(t, Format{SampleRate: 16000, Channels: 1, FramesPerBlock: 4}, src.Format())

	dst := make([]float32, 16)
	n, err := src.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.InDeltaSlice(t, []float64{0, 0.5, -0.5, 32767.0 / 32768.0}, toFloat64(dst[:n]), 1e-6)

	n, err = src.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.InDeltaSlice(t, []float64{-1, 0.25}, toFloat64(dst[:n]), 1e-6)

	_, err = src.Read(dst)
	require.ErrorIs(t, err, io.EOF)
}

func TestOpenWAVAppendsTrailingSilence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	require.NoError(t, WriteWAV(path, 8000, []int16{1000, 1000}))

	src, err := OpenWAV(path, 1024, 100*time.Millisecond)
	require.NoError(t, err)

	dst := make([]float32, 2048)
	n, err := src.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 2+800, n)
	for _, v := range dst[2:n] {
		require.Zero(t, v)
	}
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file at all"), 0o600))

	_, err := OpenWAV(path, 1024, 0)
	require.Error(t, err)
}

func TestOpenWAVMissingFile(t *testing.T) {
	_, err := OpenWAV(filepath.Join(t.TempDir(), "missing.wav"), 1024, 0)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
