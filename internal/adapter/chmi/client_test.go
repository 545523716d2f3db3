package chmi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetchText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil, discardLogger())
	text, err := client.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil, discardLogger())

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, client.FetchJSON(context.Background(), srv.URL, &out))
	assert.Equal(t, 42, out.Value)
}

func TestFetch_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil, discardLogger())
	_, err := client.FetchText(context.Background(), srv.URL)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, srv.URL, statusErr.URL)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(50*time.Millisecond, nil, discardLogger())
	_, err := client.FetchText(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLimiter(t *testing.T) {
	t.Run("zero rate means unpaced", func(t *testing.T) {
		assert.Nil(t, NewLimiter(0, 8))
		assert.Nil(t, NewLimiter(-1, 8))
	})

	t.Run("positive rate", func(t *testing.T) {
		limiter := NewLimiter(5, 8)
		require.NotNil(t, limiter)
		assert.Equal(t, rate.Limit(5), limiter.Limit())
		assert.Equal(t, 8, limiter.Burst())
	})

	t.Run("burst floor", func(t *testing.T) {
		limiter := NewLimiter(5, 0)
		require.NotNil(t, limiter)
		assert.Equal(t, 1, limiter.Burst())
	})
}

func TestFetch_UnpacedBeyondBurst(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// The default configuration is unpaced; every fetch past what would
	// have been the burst window must still go through.
	client := NewClient(time.Second, NewLimiter(0, 4), discardLogger())
	for i := 0; i < 10; i++ {
		_, err := client.FetchText(context.Background(), srv.URL)
		require.NoError(t, err, "fetch %d", i)
	}
	assert.Equal(t, int64(10), hits.Load())
}

func TestFetch_Paced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(time.Second, NewLimiter(1000, 2), discardLogger())
	for i := 0; i < 6; i++ {
		_, err := client.FetchText(context.Background(), srv.URL)
		require.NoError(t, err, "fetch %d", i)
	}
}

func TestFetchIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<a href="307245.json">x</a><a href="308190.json">y</a>`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil, discardLogger())
	files, err := client.FetchIndex(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"307245.json", "308190.json"}, files)
}

func TestFetchStationPoints(t *testing.T) {
	const doc = `{
		"objList": [{
			"tsList": [
				{"tsConID": "H", "tsData": [
					{"dt": "2026-08-30T10:00:00Z", "value": 123.0},
					{"dt": "2026-08-30T10:10:00Z", "value": null}
				]},
				{"tsConID": "Q", "tsData": [
					{"dt": "2026-08-30T10:00:00Z", "value": 4.2}
				]}
			]
		}]
	}`

	t.Run("merges series", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/307245.json", r.URL.Path)
			_, _ = w.Write([]byte(doc))
		}))
		defer srv.Close()

		client := NewClient(time.Second, nil, discardLogger())
		points, err := client.FetchStationPoints(context.Background(), srv.URL+"/", "307245.json")
		require.NoError(t, err)

		require.Len(t, points, 1)
		assert.Equal(t, "2026-08-30T10:00:00Z", points[0].TS)
		require.NotNil(t, points[0].Level)
		assert.Equal(t, 123.0, *points[0].Level)
		require.NotNil(t, points[0].Discharge)
		assert.Equal(t, 4.2, *points[0].Discharge)
	})

	t.Run("empty object list", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"objList": []}`))
		}))
		defer srv.Close()

		client := NewClient(time.Second, nil, discardLogger())
		_, err := client.FetchStationPoints(context.Background(), srv.URL+"/", "307245.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no object")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{broken`))
		}))
		defer srv.Close()

		client := NewClient(time.Second, nil, discardLogger())
		_, err := client.FetchStationPoints(context.Background(), srv.URL+"/", "307245.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode")
	})
}
