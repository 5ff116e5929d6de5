package rfc9111

import (
	"net/http"
	"testing"
	"time"
)

func TestEnsureDateHeader(t *testing.T) {
	received := time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)
	header := make(http.Header)
	EnsureDateHeader(header, received)
	if date := header.Get("Date"); date != "Fri, 01 Mar 2024 12:30:00 GMT" {
		t.Fatalf("Date is %s", date)
	}

	header.Set("Date", "Thu, 29 Feb 2024 00:00:00 GMT")
	EnsureDateHeader(header, received)
	if date := header.Get("Date"); date != "Thu, 29 Feb 2024 00:00:00 GMT" {
		t.Fatalf("Origin date was replaced with %s", date)
	}
}
