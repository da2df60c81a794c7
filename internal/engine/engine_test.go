package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubDecoder struct {
	Decoder
	cfg Config
}

func TestOpenUsesRegisteredBackend(t *testing.T) {
	Register("stub-open", func(cfg Config) (Decoder, error) {
		return &stubDecoder{cfg: cfg}, nil
	})

	dec, err := Open("stub-open", Config{AcousticModel: "/models/en"})
	require.NoError(t, err)

	stub, ok := dec.(*stubDecoder)
	require.True(t, ok)
	require.Equal(t, "/models/en", stub.cfg.AcousticModel)
	require.Equal(t, SampleRate, stub.cfg.SampleRate)
	require.Contains(t, Backends(), "stub-open")
}

func TestOpenPropagatesBackendError(t *testing.T) {
	boom := errors.New("model missing")
	Register("stub-fail", func(Config) (Decoder, error) { return nil, boom })

	_, err := Open("stub-fail", Config{})
	require.ErrorIs(t, err, boom)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("does-not-exist", Config{})
	require.ErrorIs(t, err, ErrUnknownBackend)
	require.Contains(t, err.Error(), `"does-not-exist"`)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	open := func(Config) (Decoder, error) { return nil, nil }
	Register("stub-dup", open)
	require.Panics(t, func() { Register("stub-dup", open) })
}
