package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Hit is the per-line coverage value sent to coveralls.
type Hit int

const (
	// NotTrackable marks lines that are not code. It encodes as JSON null.
	NotTrackable Hit = -1
	Missed       Hit = 0
	Covered      Hit = 1
)

var jsonNull = []byte("null")

// MarshalJSON encodes NotTrackable as null and other values as integers.
func (h Hit) MarshalJSON() ([]byte, error) {
	if h < 0 {
		return jsonNull, nil
	}
	return []byte(strconv.Itoa(int(h))), nil
}

// UnmarshalJSON accepts null or a non-negative integer.
func (h *Hit) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		*h = NotTrackable
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid coverage value %s: %w", data, err)
	}
	if n < 0 {
		return fmt.Errorf("invalid coverage value %d", n)
	}
	*h = Hit(n)
	return nil
}

// SourceFile is one entry of the source_files array of a coveralls job.
type SourceFile struct {
	Name     string `json:"name"`
	Source   string `json:"source"`
	Coverage []Hit  `json:"coverage"`
	Branches []int  `json:"branches,omitempty"`
}

// Hits returns the number of covered lines.
func (f SourceFile) Hits() int {
	n := 0
	for _, h := range f.Coverage {
		if h > 0 {
			n += int(h)
		}
	}
	return n
}

// Relevant returns the number of trackable lines.
func (f SourceFile) Relevant() int {
	n := 0
	for _, h := range f.Coverage {
		if h != NotTrackable {
			n++
		}
	}
	return n
}
