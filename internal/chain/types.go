package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Nanos is a Unix timestamp in nanoseconds. The contract serializes
// timestamps as JSON strings of nanoseconds; numbers are accepted too.
type Nanos uint64

func (n Nanos) IsZero() bool { return n == 0 }

func (n Nanos) Time() time.Time { return time.Unix(0, int64(n)) }

func (n Nanos) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(n), 10))), nil
}

func (n *Nanos) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		*n = Nanos(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = Nanos(v)
	return nil
}

// Topic is an optional category label on an announcement.
//
// The contract stores the topic as a plain string; the data model here is an
// object with a name, so both encodings are accepted.
type Topic struct {
	Name string `json:"name"`
}

func (t *Topic) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		t.Name = ""
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &t.Name)
	}
	type plain Topic
	return json.Unmarshal(b, (*plain)(t))
}

// Announcement is a single record from the announcer contract.
// Read-only to this system; ids are strictly increasing by creation order.
type Announcement struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Author  string `json:"author,omitempty"`
	Topic   *Topic `json:"topic,omitempty"`
	Time    Nanos  `json:"time,omitempty"`
}

// TopicName returns the topic label or "" when absent.
func (a Announcement) TopicName() string {
	if a.Topic == nil {
		return ""
	}
	return a.Topic.Name
}
