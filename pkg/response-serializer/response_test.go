package serializer

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func readTestResponse(t *testing.T, raw string) *http.Response {
	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(raw)), nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestSnapshotBodyIntact(t *testing.T) {
	res := readTestResponse(t, "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body")

	snap, err := TakeSnapshot(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(snap.Response(nil).Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if fmt.Sprintf("%s", body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestSnapshotSerialization(t *testing.T) {
	storedAt := time.Unix(time.Now().Unix(), 0)
	snap := Snapshot{
		StatusCode: 201,
		Header:     http.Header{},
		Body:       []byte("created"),
		StoredAt:   storedAt,
	}
	snap.Header.Add("Test", "-ing")

	bts, err := snap.Bytes()
	if err != nil {
		t.Fatalf("Error creating bytes: %+v", err)
	}
	snap2, err := FromBytes(bts)
	if err != nil {
		t.Fatalf("Error creating snapshot: %+v", err)
	}
	if snap2.StatusCode != 201 {
		t.Fatalf("Status is %d", snap2.StatusCode)
	}
	if snap2.Header.Get("Test") != "-ing" {
		t.Fatalf("Test header wrong %+v", snap2.Header)
	}
	if snap2.Header.Get(storedAtHeaderName) != "" {
		t.Fatalf("Internal header leaked %+v", snap2.Header)
	}
	if string(snap2.Body) != "created" {
		t.Fatalf("Body is %s", snap2.Body)
	}
	if !snap2.StoredAt.Equal(storedAt) {
		t.Fatalf("Stored at %v, expected %v", snap2.StoredAt, storedAt)
	}
}

func TestResponsesAreIndependent(t *testing.T) {
	snap, err := TakeSnapshot(readTestResponse(t, "HTTP/1.1 200 OK\r\nX-Test: original\r\nContent-Length: 5\r\n\r\nhello"))
	if err != nil {
		t.Fatal(err)
	}

	first := snap.Response(nil)
	first.Header.Set("X-Test", "changed")
	io.ReadAll(first.Body)

	second := snap.Response(nil)
	if h := second.Header.Get("X-Test"); h != "original" {
		t.Fatalf("Header is %s", h)
	}
	if body, _ := io.ReadAll(second.Body); string(body) != "hello" {
		t.Fatalf("Body is %s", body)
	}
}

func TestFromBytesWithoutTimestamp(t *testing.T) {
	if _, err := FromBytes([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")); err == nil {
		t.Fatal("Expected error for response without timestamp")
	}
}

func TestSuccessful(t *testing.T) {
	for status, expected := range map[int]bool{200: true, 204: true, 299: true, 304: false, 404: false, 500: false} {
		if ok := (Snapshot{StatusCode: status}).Successful(); ok != expected {
			t.Fatalf("Status %d successful: %v", status, ok)
		}
	}
}

func TestPartialContentIsNotStorable(t *testing.T) {
	for status, expected := range map[int]bool{200: true, 203: true, 206: false, 404: false} {
		if ok := (Snapshot{StatusCode: status}).Storable(); ok != expected {
			t.Fatalf("Status %d storable: %v", status, ok)
		}
	}
}
