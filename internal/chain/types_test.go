package chain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNanosDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want Nanos
	}{
		{name: "string", in: `"1696118400000000000"`, want: 1696118400000000000},
		{name: "number", in: `1696118400000000000`, want: 1696118400000000000},
		{name: "null", in: `null`, want: 0},
		{name: "empty string", in: `""`, want: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var n Nanos
			if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if n != tt.want {
				t.Fatalf("got %d, want %d", n, tt.want)
			}
		})
	}

	var n Nanos
	if err := json.Unmarshal([]byte(`"not-a-number"`), &n); err == nil {
		t.Fatal("expected error for non-numeric string")
	}
}

func TestNanosEncodeAsString(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Nanos(42))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"42"` {
		t.Fatalf("got %s, want %q", b, "42")
	}
}

func TestNanosTime(t *testing.T) {
	t.Parallel()
	ts := time.Date(2023, 10, 1, 0, 0, 0, 500, time.UTC)
	n := Nanos(ts.UnixNano())
	if !n.Time().Equal(ts) {
		t.Fatalf("Time() = %v, want %v", n.Time(), ts)
	}
	if !Nanos(0).IsZero() || Nanos(1).IsZero() {
		t.Fatal("IsZero misreports")
	}
}

func TestTopicDecodeForms(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare string", in: `{"topic":"governance"}`, want: "governance"},
		{name: "object", in: `{"topic":{"name":"upgrades"}}`, want: "upgrades"},
		{name: "null", in: `{"topic":null}`, want: ""},
		{name: "absent", in: `{}`, want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var a Announcement
			if err := json.Unmarshal([]byte(tt.in), &a); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if a.TopicName() != tt.want {
				t.Fatalf("TopicName = %q, want %q", a.TopicName(), tt.want)
			}
		})
	}
}
