package serializer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const storedAtHeaderName = "Shellcache-Stored-At"

// Snapshot is an immutable copy of a response taken at the time it was stored.
// Every accessor hands out copies, so two consumers never share a body or header map.
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock when the snapshot was taken.
	StoredAt time.Time
}

// TakeSnapshot reads the complete body of the response and closes it.
// The response must not be used afterwards; use Snapshot.Response instead.
func TakeSnapshot(res *http.Response) (Snapshot, error) {
	snap := Snapshot{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		StoredAt:   time.Now(),
	}
	if snap.Header == nil {
		snap.Header = make(http.Header)
	}
	if res.Body == nil {
		return snap, nil
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return snap, err
	}
	snap.Body = body
	return snap, nil
}

// Successful reports whether the snapshot has a status in the 2xx range.
func (s Snapshot) Successful() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Storable reports whether the snapshot is a complete successful response.
// Partial content only answers the range it was requested for.
func (s Snapshot) Storable() bool {
	return s.Successful() && s.StatusCode != http.StatusPartialContent
}

// Response creates a new response from the snapshot, with its own header map and body.
func (s Snapshot) Response(req *http.Request) *http.Response {
	body := bytes.Clone(s.Body)
	header := s.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// Bytes returns the HTTP/1.1 representation of the snapshot,
// with the storage time included as an extra header.
func (s Snapshot) Bytes() ([]byte, error) {
	res := s.Response(nil)
	res.Header.Set(storedAtHeaderName, strconv.FormatInt(s.StoredAt.Unix(), 10))
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes parses a snapshot previously created with Snapshot.Bytes.
func FromBytes(b []byte) (Snapshot, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return Snapshot{}, err
	}
	storedAt, err := strconv.ParseInt(res.Header.Get(storedAtHeaderName), 10, 64)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Stored response without timestamp: %w", err)
	}
	res.Header.Del(storedAtHeaderName)
	snap, err := TakeSnapshot(res)
	if err != nil {
		return Snapshot{}, err
	}
	snap.StoredAt = time.Unix(storedAt, 0)
	return snap, nil
}
