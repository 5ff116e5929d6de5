// Package rfc9111 holds the parts of HTTP Caching (RFC 9111) that shellcache applies
// to responses it serves from storage.
package rfc9111

import (
	"net/http"
	"time"
)

// RFC 9110, Section 6.6.1:
//
// §     A recipient with a clock that receives a response message without a
// §     Date header field MUST record the time it was received and append a
// §     corresponding Date header field to the message's header section if it
// §     is cached or forwarded downstream.

const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// ToHttpDate formats a time as an IMF-fixdate.
func ToHttpDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// EnsureDateHeader sets the Date header of a received response if the origin did not send one.
func EnsureDateHeader(header http.Header, received time.Time) {
	if header.Get("Date") == "" {
		header.Set("Date", ToHttpDate(received))
	}
}
