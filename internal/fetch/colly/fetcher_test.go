package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasatchdata/listingradar/internal/listing"
)

func TestFetchReturnsDocument(t *testing.T) {
	t.Parallel()

	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Requested-With")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	f := New(Config{UserAgent: "listingradar/1.0", Timeout: 5 * time.Second})

	doc, err := f.Fetch(context.Background(), listing.FetchRequest{
		MLSNumber: "111",
		URL:       server.URL,
		Headers:   http.Header{"X-Requested-With": {"listingradar"}},
	})
	require.NoError(t, err)
	require.Equal(t, "111", doc.MLSNumber)
	require.Equal(t, http.StatusOK, doc.StatusCode)
	require.Contains(t, string(doc.Body), "ok")
	require.Equal(t, "listingradar/1.0", gotUA)
	require.Equal(t, "listingradar", gotHeader)
}

func TestFetchRespectRobotsToggle(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	enforcing := New(Config{Timeout: 5 * time.Second, RespectRobots: true})
	_, err := enforcing.Fetch(context.Background(), listing.FetchRequest{
		MLSNumber: "111",
		URL:       server.URL + "/12345678",
	})
	require.Error(t, err)

	ignoring := New(Config{Timeout: 5 * time.Second})
	doc, err := ignoring.Fetch(context.Background(), listing.FetchRequest{
		MLSNumber: "111",
		URL:       server.URL + "/12345678",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, doc.StatusCode)
}

func TestFetchSurfacesServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := New(Config{Timeout: 5 * time.Second})

	_, err := f.Fetch(context.Background(), listing.FetchRequest{MLSNumber: "111", URL: server.URL})
	require.Error(t, err)
}
