package cachekey

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var ErrorMalformedKey = fmt.Errorf("Malformed key")

const methodSeparator = ":"

// CacheKeyer creates canonical request identities.
// A key is the request method and the absolute request URL (query included,
// fragment dropped), e.g. `GET:https://lms.example/dashboard?tab=1`.
type CacheKeyer struct {
	// Origin used for resolving relative paths,
	// e.g. the app shell manifest entries.
	Origin *url.URL
}

func NewCacheKeyer(origin *url.URL) CacheKeyer {
	return CacheKeyer{Origin: origin}
}

// GetKey returns the cache key for a request.
// Requests with relative URLs (e.g. incoming server requests) are resolved against the origin.
func (c CacheKeyer) GetKey(r *http.Request) string {
	return r.Method + methodSeparator + c.canonicalURL(r.URL)
}

// KeyForPath returns the cache key of a GET request for the given origin-relative path.
func (c CacheKeyer) KeyForPath(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return http.MethodGet + methodSeparator + c.canonicalURL(ref), nil
}

// URLForPath resolves an origin-relative path to an absolute URL.
func (c CacheKeyer) URLForPath(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return c.resolve(ref), nil
}

// GetRequestFromKey generates a request equal (caching-wise) to the request that resulted
// in the provided key.
func (c CacheKeyer) GetRequestFromKey(key string) (*http.Request, error) {
	method, uri, found := strings.Cut(key, methodSeparator)
	if !found || method == "" || uri == "" {
		return nil, fmt.Errorf("%w: %s", ErrorMalformedKey, key)
	}
	return http.NewRequest(method, uri, nil)
}

func (c CacheKeyer) canonicalURL(u *url.URL) string {
	resolved := c.resolve(u)
	clean := *resolved
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}

func (c CacheKeyer) resolve(u *url.URL) *url.URL {
	if u.IsAbs() || c.Origin == nil {
		return u
	}
	return c.Origin.ResolveReference(u)
}
