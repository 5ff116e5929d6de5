package shellcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/always-cache/shellcache/cache"

	"github.com/rs/zerolog"
)

const testOrigin = "https://lms.example"

var errNetworkDown = errors.New("network down")

// network is a fake network that serves requests with a handler
// and counts the requests per path.
type network struct {
	mutex   sync.Mutex
	offline bool
	calls   map[string]int
	handler http.Handler
}

func newNetwork(handler http.HandlerFunc) *network {
	return &network{calls: make(map[string]int), handler: handler}
}

func (n *network) RoundTrip(r *http.Request) (*http.Response, error) {
	n.mutex.Lock()
	n.calls[r.URL.Path]++
	offline := n.offline
	n.mutex.Unlock()
	if offline {
		return nil, errNetworkDown
	}
	rec := httptest.NewRecorder()
	n.handler.ServeHTTP(rec, r)
	res := rec.Result()
	res.Request = r
	return res, nil
}

func (n *network) setOffline(offline bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.offline = offline
}

func (n *network) callCount(path string) int {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.calls[path]
}

// appHandler serves the path as the body, and the shell pages.
func appHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/offline":
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("You are offline"))
	case "/missing.css":
		w.WriteHeader(http.StatusNotFound)
	case "/broken.css":
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal error"))
	default:
		w.Write([]byte("Content of " + r.URL.Path))
	}
}

var testLogger = zerolog.Nop()

func testConfig(store cache.CacheProvider, transport http.RoundTripper, version string) Config {
	origin, _ := url.Parse(testOrigin)
	return Config{
		Cache:       store,
		OriginURL:   *origin,
		Version:     version,
		CachePrefix: "lms",
		Shell:       []string{"/", "/offline"},
		Transport:   transport,
		Logger:      &testLogger,
	}
}

func newWorker(t *testing.T, config Config) *Worker {
	t.Helper()
	w, err := CreateWorker(config)
	if err != nil {
		t.Fatalf("Could not create worker: %v", err)
	}
	return w
}

// activeWorker returns an installed and activated worker.
func activeWorker(t *testing.T, config Config) *Worker {
	t.Helper()
	w := newWorker(t, config)
	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if err := w.Activate(context.Background()); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return w
}

func get(t *testing.T, rt http.RoundTripper, path string, header ...string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, testOrigin+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	return rt.RoundTrip(req)
}

func mustGet(t *testing.T, rt http.RoundTripper, path string, header ...string) (*http.Response, string) {
	t.Helper()
	res, err := get(t, rt, path, header...)
	if err != nil {
		t.Fatalf("Request to %s failed: %v", path, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res, string(body)
}

func storedKeys(t *testing.T, store cache.CacheProvider, namespace string) []string {
	t.Helper()
	keys, err := store.Keys(namespace)
	if err != nil {
		t.Fatal(err)
	}
	return keys
}

func key(path string) string {
	return fmt.Sprintf("GET:%s%s", testOrigin, path)
}

// failingStore fails reads or writes on demand.
type failingStore struct {
	cache.CacheProvider
	failReads  bool
	failWrites bool
}

var errStorage = errors.New("storage failure")

func (f failingStore) Match(namespace, key string) ([]byte, bool, error) {
	if f.failReads {
		return nil, false, errStorage
	}
	return f.CacheProvider.Match(namespace, key)
}

func (f failingStore) Put(namespace, key string, bytes []byte) error {
	if f.failWrites {
		return errStorage
	}
	return f.CacheProvider.Put(namespace, key, bytes)
}
