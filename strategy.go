package shellcache

import (
	"context"
	"net/http"

	serializer "github.com/always-cache/shellcache/pkg/response-serializer"
	"github.com/always-cache/shellcache/rfc9211"
)

// networkOnly never reads or writes the cache.
func (w *Worker) networkOnly(req *request) (*http.Response, error) {
	res, err := w.transport.RoundTrip(req.r)
	if err != nil {
		return nil, err
	}
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	req.cacheStatus.Forward(rfc9211.FwdReasonBypass)
	req.cacheStatus.Append(res.Header, CacheName)
	return res, nil
}

// cacheFirst serves stored responses without touching the network.
// On a miss the response is fetched and stored if successful.
// With placeholder set, a network failure results in an empty 404 instead of an error.
func (w *Worker) cacheFirst(req *request, namespace string, placeholder bool) (*http.Response, error) {
	if snap, ok := w.match(req, namespace, req.key); ok {
		req.cacheStatus.Hit()
		return w.respond(req, snap, true), nil
	}

	snap, err := w.fetch(req.r)
	if err != nil {
		if !placeholder {
			return nil, err
		}
		req.log.Warn().Err(err).Msg("Network failed, sending placeholder")
		req.cacheStatus.Forward(rfc9211.FwdReasonUriMiss)
		req.cacheStatus.Detail = "placeholder"
		return w.respond(req, serializer.Snapshot{
			StatusCode: http.StatusNotFound,
			Header:     make(http.Header),
		}, false), nil
	}

	req.cacheStatus.Forward(rfc9211.FwdReasonUriMiss)
	req.cacheStatus.Stored = w.store(req, namespace, snap)
	return w.respond(req, snap, false), nil
}

// networkFirst prefers fresh responses and keeps a copy in the dynamic namespace.
// When the network fails it falls back to the stored copy of the same page,
// then to the offline page of the app shell.
func (w *Worker) networkFirst(req *request) (*http.Response, error) {
	snap, err := w.fetch(req.r)
	if err == nil {
		req.cacheStatus.Forward(rfc9211.FwdReasonMiss)
		req.cacheStatus.Stored = w.store(req, w.namespaces.Dynamic, snap)
		return w.respond(req, snap, false), nil
	}
	req.log.Warn().Err(err).Msg("Network failed, trying cache")

	if cached, ok := w.match(req, w.namespaces.Dynamic, req.key); ok {
		req.cacheStatus.Hit()
		req.cacheStatus.Detail = "offline"
		return w.respond(req, cached, true), nil
	}

	offlineKey, keyErr := w.keyer.KeyForPath(w.offlinePage)
	if keyErr != nil {
		req.log.Error().Err(keyErr).Msg("Could not get offline page key")
		return nil, err
	}
	if offline, ok := w.match(req, w.namespaces.Static, offlineKey); ok {
		req.cacheStatus.Hit()
		req.cacheStatus.Detail = "offline-page"
		return w.respond(req, offline, true), nil
	}
	return nil, err
}

type fetchResult struct {
	snap   serializer.Snapshot
	err    error
	stored bool
}

// staleWhileRevalidate serves the stored response right away if there is one,
// while a background fetch refreshes the dynamic namespace.
// On a miss it waits for the fetch.
func (w *Worker) staleWhileRevalidate(req *request) (*http.Response, error) {
	cached, hit := w.match(req, w.namespaces.Dynamic, req.key)

	fetched := make(chan fetchResult, 1)
	// the revalidation outlives the client request
	background := req.r.Clone(context.WithoutCancel(req.r.Context()))

	w.background.Add(1)
	go func() {
		defer w.background.Done()
		var result fetchResult
		result.snap, result.err = w.fetch(background)
		if result.err != nil {
			req.log.Warn().Err(result.err).Msg("Could not revalidate")
		} else {
			result.stored = w.store(req, w.namespaces.Dynamic, result.snap)
		}
		fetched <- result
	}()

	if hit {
		req.cacheStatus.Hit()
		req.cacheStatus.Detail = "stale"
		return w.respond(req, cached, true), nil
	}

	var result fetchResult
	select {
	case result = <-fetched:
	case <-req.r.Context().Done():
		// the fetch carries on and may still store its response
		return nil, req.r.Context().Err()
	}
	if result.err != nil {
		return nil, result.err
	}
	req.cacheStatus.Forward(rfc9211.FwdReasonUriMiss)
	req.cacheStatus.Stored = result.stored
	return w.respond(req, result.snap, false), nil
}
