package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(zerolog.Nop(), Config{
		GatewayHost:  "gateway.test",
		FetchTimeout: 2 * time.Second,
		Workers:      4,
		MemoSize:     16,
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Token #1","description":"first","image":"ipfs://` + testCID + `"}`))
	}))
	defer srv.Close()

	r := newTestResolver(t)

	doc, err := r.Resolve(context.Background(), srv.URL+"/meta/1.json")
	require.NoError(t, err)
	require.Equal(t, "Token #1", doc.Name)
	require.Equal(t, "first", doc.Description)
	require.Equal(t, "ipfs://"+testCID, doc.Image)
	require.Equal(t, "https://gateway.test/ipfs/"+testCID, doc.ImageURL)
}

func TestResolve_Memoized(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"name":"Token #1"}`))
	}))
	defer srv.Close()

	r := newTestResolver(t)
	uri := srv.URL + "/meta/1.json"

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), uri)
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), hits.Load())
}

func TestResolve_FailuresNotMemoized(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"name":"recovered"}`))
	}))
	defer srv.Close()

	r := newTestResolver(t)
	uri := srv.URL + "/meta/1.json"

	_, err := r.Resolve(context.Background(), uri)
	require.ErrorIs(t, err, ErrUnreachable)

	doc, err := r.Resolve(context.Background(), uri)
	require.NoError(t, err)
	require.Equal(t, "recovered", doc.Name)
}

func TestResolve_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), srv.URL+"/missing.json")
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestResolve_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), url+"/meta.json")
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestResolve_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), srv.URL+"/meta.json")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestResolve_MalformedURI(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.Resolve(context.Background(), "ipfs://not-a-cid")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestResolveBatch_IsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/good.json":
			_, _ = w.Write([]byte(`{"name":"good"}`))
		case "/broken.json":
			_, _ = w.Write([]byte(`{broken`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r := newTestResolver(t)

	uris := []string{
		srv.URL + "/good.json",
		srv.URL + "/broken.json",
		srv.URL + "/missing.json",
	}
	results := r.ResolveBatch(context.Background(), uris)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, "good", results[0].Document.Name)
	require.Equal(t, uris[0], results[0].URI)

	require.ErrorIs(t, results[1].Err, ErrMalformed)
	require.ErrorIs(t, results[2].Err, ErrUnreachable)
}

func TestResolveBatch_Empty(t *testing.T) {
	r := newTestResolver(t)
	require.Empty(t, r.ResolveBatch(context.Background(), nil))
}
