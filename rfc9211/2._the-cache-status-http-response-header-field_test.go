package rfc9211

import (
	"net/http"
	"testing"
)

func TestFormatHit(t *testing.T) {
	cs := CacheStatus{}
	cs.Hit()
	if s := cs.Format("ExampleCache"); s != "ExampleCache; hit" {
		t.Fatalf("Cache status is %s", s)
	}
}

func TestFormatForwardStored(t *testing.T) {
	cs := CacheStatus{Stored: true}
	cs.Forward(FwdReasonUriMiss)
	if s := cs.Format("ExampleCache"); s != "ExampleCache; fwd=uri-miss; stored" {
		t.Fatalf("Cache status is %s", s)
	}
}

func TestFormatDetail(t *testing.T) {
	cs := CacheStatus{Detail: "offline"}
	cs.Hit()
	if s := cs.Format("ExampleCache"); s != "ExampleCache; hit; detail=offline" {
		t.Fatalf("Cache status is %s", s)
	}
}

func TestAppendPreservesExisting(t *testing.T) {
	h := http.Header{}
	h.Add(HeaderName, "OriginCache; hit")
	cs := CacheStatus{}
	cs.Forward(FwdReasonBypass)
	cs.Append(h, "ExampleCache")
	values := h.Values(HeaderName)
	if len(values) != 2 || values[1] != "ExampleCache; fwd=bypass" {
		t.Fatalf("Cache-Status is %v", values)
	}
}
