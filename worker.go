package shellcache

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/always-cache/shellcache/cache"
	cachekey "github.com/always-cache/shellcache/pkg/cache-key"
	requestclass "github.com/always-cache/shellcache/pkg/request-class"
	serializer "github.com/always-cache/shellcache/pkg/response-serializer"
	"github.com/always-cache/shellcache/rfc9111"
	"github.com/always-cache/shellcache/rfc9211"

	"github.com/rs/zerolog"
)

// CacheName identifies this cache in Cache-Status headers.
const CacheName = "Shellcache"

const DefaultOfflinePage = "/offline"

type Config struct {
	// Storage for cache entries. An in-memory store is used if nil.
	Cache cache.CacheProvider
	// URL of the application origin.
	// Shell paths and the offline page are resolved against it.
	OriginURL url.URL
	// Application version. Changing it changes all namespace names.
	Version string
	// Prefix shared by all namespaces of the application, e.g. `lms`.
	CachePrefix string
	// Paths fetched and stored at install time.
	Shell []string
	// Shell path served to navigations when both network and cache fail.
	// Defaults to DefaultOfflinePage.
	OfflinePage string
	// Build output paths treated as static assets.
	// Defaults to requestclass.DefaultStaticPrefixes.
	StaticPrefixes []string
	// Network used for all fetches. http.DefaultTransport is used if nil.
	Transport http.RoundTripper
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Worker intercepts requests and applies the caching strategy of each request class.
// A worker starts in StateNew and only applies caching once it is active;
// before that (and once it is redundant) requests go straight to the network.
type Worker struct {
	cache       cache.CacheProvider
	keyer       cachekey.CacheKeyer
	classifier  requestclass.Classifier
	namespaces  Namespaces
	shell       []string
	offlinePage string
	transport   http.RoundTripper
	log         zerolog.Logger

	state     atomic.Int32
	lifecycle sync.Mutex
	// held for reading by every cache write, and for writing when the worker retires
	writes sync.RWMutex
	// background revalidations
	background sync.WaitGroup
}

// CreateWorker sets up a worker for one version of the application.
func CreateWorker(config Config) (*Worker, error) {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("cacheVersion", config.Version).
		Logger()

	if !config.OriginURL.IsAbs() {
		return nil, fmt.Errorf("Origin URL must be absolute: %q", config.OriginURL.String())
	}
	namespaces, err := NewNamespaces(config.CachePrefix, config.Version)
	if err != nil {
		return nil, err
	}

	w := &Worker{
		cache:       config.Cache,
		keyer:       cachekey.NewCacheKeyer(&config.OriginURL),
		classifier:  requestclass.Classifier{StaticPrefixes: config.StaticPrefixes},
		namespaces:  namespaces,
		shell:       append([]string(nil), config.Shell...),
		offlinePage: config.OfflinePage,
		transport:   config.Transport,
		log:         logger,
	}
	if w.cache == nil {
		w.cache = cache.NewMemCache()
	}
	if w.transport == nil {
		w.transport = http.DefaultTransport
	}
	if w.offlinePage == "" {
		w.offlinePage = DefaultOfflinePage
	}
	return w, nil
}

func (w *Worker) Namespaces() Namespaces {
	return w.namespaces
}

// Wait blocks until all background revalidations have finished.
func (w *Worker) Wait() {
	w.background.Wait()
}

type request struct {
	r           *http.Request
	key         string
	class       requestclass.Class
	cacheStatus rfc9211.CacheStatus
	log         zerolog.Logger
}

// RoundTrip implements the http.RoundTripper interface.
// Request URLs must be absolute.
func (w *Worker) RoundTrip(r *http.Request) (*http.Response, error) {
	if w.State() != StateActive {
		return w.transport.RoundTrip(r)
	}

	req := &request{
		r:     r,
		key:   w.keyer.GetKey(r),
		class: w.classifier.ClassifyRequest(r),
	}
	req.log = w.log.With().Str("key", req.key).Str("class", req.class.String()).Logger()
	req.log.Trace().Msg("Handling request")

	var res *http.Response
	var err error
	switch req.class {
	case requestclass.Api:
		res, err = w.networkOnly(req)
	case requestclass.StaticAsset:
		res, err = w.cacheFirst(req, w.namespaces.Static, false)
	case requestclass.Image:
		res, err = w.cacheFirst(req, w.namespaces.Image, true)
	case requestclass.Navigation:
		res, err = w.networkFirst(req)
	case requestclass.Other:
		res, err = w.staleWhileRevalidate(req)
	default:
		return w.transport.RoundTrip(r)
	}

	if err != nil {
		req.log.Debug().Err(err).Msg("Network request failed")
		return nil, err
	}
	w.logRequest(req, res)
	return res, nil
}

// fetch performs the network request and takes a snapshot of the full response.
func (w *Worker) fetch(r *http.Request) (serializer.Snapshot, error) {
	res, err := w.transport.RoundTrip(r)
	if err != nil {
		return serializer.Snapshot{}, err
	}
	snap, err := serializer.TakeSnapshot(res)
	if err != nil {
		return serializer.Snapshot{}, err
	}
	rfc9111.EnsureDateHeader(snap.Header, snap.StoredAt)
	return snap, nil
}

// match looks up a stored snapshot. Storage and decoding failures count as a miss.
func (w *Worker) match(req *request, namespace, key string) (serializer.Snapshot, bool) {
	b, ok, err := w.cache.Match(namespace, key)
	if err != nil {
		req.log.Warn().Err(err).Str("namespace", namespace).Msg("Could not read from cache")
		return serializer.Snapshot{}, false
	}
	if !ok {
		req.log.Trace().Str("namespace", namespace).Msg("Cache miss")
		return serializer.Snapshot{}, false
	}
	snap, err := serializer.FromBytes(b)
	if err != nil {
		req.log.Warn().Err(err).Str("namespace", namespace).Msg("Could not decode cached response")
		if _, err := w.cache.Delete(namespace, key); err != nil {
			req.log.Warn().Err(err).Str("namespace", namespace).Msg("Could not delete cached response")
		}
		return serializer.Snapshot{}, false
	}
	return snap, true
}

// store writes a complete successful snapshot and reports whether it was stored.
// Responses to ranged requests are never stored, and neither is anything
// once the worker is no longer active.
// Failures are logged only, the response is served regardless.
func (w *Worker) store(req *request, namespace string, snap serializer.Snapshot) bool {
	if !snap.Storable() || req.r.Header.Get("Range") != "" {
		return false
	}
	b, err := snap.Bytes()
	if err != nil {
		req.log.Error().Err(err).Msg("Could not serialize response")
		return false
	}

	w.writes.RLock()
	defer w.writes.RUnlock()
	if state := w.State(); state != StateActive {
		req.log.Trace().Str("state", state.String()).Msg("Not writing to cache of inactive worker")
		return false
	}
	err = w.cache.Put(namespace, req.key, b)
	if err != nil {
		req.log.Error().Err(err).Str("namespace", namespace).Msg("Could not write to cache")
		return false
	}
	req.log.Trace().Str("namespace", namespace).Msg("Wrote to cache")
	return true
}

// respond creates the response for the client from a snapshot.
func (w *Worker) respond(req *request, snap serializer.Snapshot, fromCache bool) *http.Response {
	res := snap.Response(req.r)
	if fromCache {
		rfc9111.AddAgeHeader(res.Header, snap.StoredAt)
	}
	req.cacheStatus.Append(res.Header, CacheName)
	return res
}

func (w *Worker) logRequest(req *request, res *http.Response) {
	isHit := 0
	if req.cacheStatus.Status == rfc9211.StatusHit {
		isHit = 1
	}
	req.log.Debug().
		Str("method", req.r.Method).
		Str("url", req.r.URL.String()).
		Int("statusCode", res.StatusCode).
		Str("status", string(req.cacheStatus.Status)).
		Str("fwd", string(req.cacheStatus.FwdReason)).
		Bool("stored", req.cacheStatus.Stored).
		Str("detail", req.cacheStatus.Detail).
		Int("hit", isHit).
		Msg("Sending response to client")
}
