package telemetry

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeExposesRecordedCounters(t *testing.T) {
	rt, err := Setup("murmur-test", "dev", nil)
	require.NoError(t, err)
	require.NotNil(t, rt.Handler)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	counter, err := rt.Meter("telemetry-test").Int64Counter("murmur.utterances")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, rt.Serve("127.0.0.1:0"))
	require.NotEmpty(t, rt.Addr)

	resp, err := http.Get("http://" + rt.Addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "murmur_utterances")
	require.Contains(t, string(body), `service_name="murmur-test"`)
}

func TestServeRejectsBadAddress(t *testing.T) {
	rt, err := Setup("murmur-test", "dev", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })

	err = rt.Serve("256.0.0.1:bad")
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen metrics")
}
