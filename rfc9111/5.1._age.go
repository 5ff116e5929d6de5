package rfc9111

import (
	"fmt"
	"net/http"
	"time"
)

// §  5.1.  Age
// §
// §     The "Age" response header field conveys the sender's estimate of the
// §     time since the response was generated or successfully validated at
// §     the origin server.
// §
// §     Age = delta-seconds
// §
// §     The Age field value is a non-negative integer, representing time in
// §     seconds (see Section 1.2.2).
// §
// §     Although it is defined as a singleton header field, a cache
// §     encountering a message with a list-based Age field value SHOULD use
// §     the first member of the field value, discarding subsequent ones.
// §
// §     The presence of an Age header field implies that the response was not
// §     generated or validated by the origin server for this request.

// AddAgeHeader sets the Age header of a response served from storage.
// The age is the resident time since the response was stored, added to any
// age the response already had when it was received.
func AddAgeHeader(header http.Header, storedAt time.Time) {
	age := time.Since(storedAt)
	if initial, ok := getAge(header); ok {
		age += initial
	}
	header.Set("Age", toDeltaSeconds(age))
}

func getAge(header http.Header) (time.Duration, bool) {
	if secondsStr := header.Get("Age"); secondsStr != "" {
		return deltaSeconds(secondsStr), true
	}
	return 0, false
}

// §  1.2.2.  Delta Seconds
// §
// §     The delta-seconds rule specifies a non-negative integer, representing
// §     time in seconds.
// §
// §     delta-seconds  = 1*DIGIT

func deltaSeconds(secondsStr string) time.Duration {
	var seconds uint64
	if _, err := fmt.Sscanf(secondsStr, "%d", &seconds); err == nil {
		return time.Second * time.Duration(seconds)
	}
	return 0
}

func toDeltaSeconds(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	return fmt.Sprintf("%d", int64(duration/time.Second))
}
