package rfc9211

import (
	"net/http"
	"strings"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates caches' handling
// §     of the request corresponding to the response it occurs within.
// §
// §     Its value is a List [STRUCTURED-FIELDS]:
// §
// §     Cache-Status   = sf-list
// §
// §     Each member of the list represents a cache that has handled the
// §     request.  The first member of the list represents the cache closest
// §     to the origin server, and the last member of the list represents the
// §     cache closest to the user (possibly including the user agent's cache
// §     itself if it appends a value).

const HeaderName = "Cache-Status"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

// §  2.2.  The fwd Parameter
// §
// §     "fwd" indicates that the request went forward towards the origin, and
// §     why.

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"
)

// CacheStatus is a single member of the Cache-Status list.
type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// §  2.5.  The stored Parameter
	// §
	// §     "stored" indicates whether the cache stored the response (see
	// §     [HTTP-CACHING], Section 3); a true value indicates that it did.
	Stored bool
	// §  2.8.  The detail Parameter
	// §
	// §     "detail" allows implementations to convey additional information
	// §     not captured in other parameters
	Detail string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// Format returns the list member for the cache with the given name.
func (cs CacheStatus) Format(cacheName string) string {
	var b strings.Builder
	b.WriteString(cacheName)
	switch cs.Status {
	case StatusHit:
		b.WriteString("; hit")
	case StatusFwd:
		b.WriteString("; fwd=")
		b.WriteString(string(cs.FwdReason))
	}
	if cs.Stored {
		b.WriteString("; stored")
	}
	if cs.Detail != "" {
		b.WriteString("; detail=")
		b.WriteString(cs.Detail)
	}
	return b.String()
}

// §     Caches determine when it is appropriate to add the Cache-Status
// §     header field to a response.  Some might add it to all responses,
// §     whereas others might only do so when specifically configured to, or
// §     when the request contains a header field that activates a debugging
// §     mode.
// §
// §     When adding a value to the Cache-Status header field, caches SHOULD
// §     preserve the existing field value, to allow debugging of the entire
// §     chain of caches handling the request.

// Append adds the cache's member to the end of the response header, keeping existing members.
func (cs CacheStatus) Append(header http.Header, cacheName string) {
	header.Add(HeaderName, cs.Format(cacheName))
}
