package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogSinkRoundTrip(t *testing.T) {
	t.Parallel()

	sink := NewLogSink()
	uri, err := sink.PutObject(context.Background(), "chunk_logs/2024-05-15/success/a.json", "application/json", []byte(`{"success":true}`))
	require.NoError(t, err)
	require.Equal(t, "memory://chunk_logs/2024-05-15/success/a.json", uri)

	data, ok := sink.Get("chunk_logs/2024-05-15/success/a.json")
	require.True(t, ok)
	require.JSONEq(t, `{"success":true}`, string(data))

	_, ok = sink.Get("missing")
	require.False(t, ok)
}

func TestLogSinkCopiesData(t *testing.T) {
	t.Parallel()

	sink := NewLogSink()
	payload := []byte("original")
	_, err := sink.PutObject(context.Background(), "p", "", payload)
	require.NoError(t, err)

	payload[0] = 'X'
	data, ok := sink.Get("p")
	require.True(t, ok)
	require.Equal(t, "original", string(data))
}
