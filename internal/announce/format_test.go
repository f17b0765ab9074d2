package announce

import (
	"strings"
	"testing"
	"time"

	"annobot/internal/chain"
)

func TestEscapeMarkdownV2(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain words", "plain words"},
		{"a_b.c", `a\_b\.c`},
		{"v1.2-rc(final)!", `v1\.2\-rc\(final\)\!`},
		{"keep *bold* and \"quotes\"", "keep *bold* and \"quotes\""},
		{"unicode × stays intact", "unicode × stays intact"},
	}
	for _, tt := range tests {
		if got := EscapeMarkdownV2(tt.in); got != tt.want {
			t.Fatalf("EscapeMarkdownV2(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderLayout(t *testing.T) {
	t.Parallel()
	a := chain.Announcement{
		ID:      7,
		Title:   "Upgrade v2.1",
		Content: "Validators: restart before height 100.",
		Topic:   &chain.Topic{Name: "upgrades"},
	}

	got := Render(a)
	want := "**Upgrade v2\\.1**\n\nValidators: restart before height 100\\.\n\nTopic: upgrades"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderWithoutTopic(t *testing.T) {
	t.Parallel()
	got := Render(chain.Announcement{Title: "t", Content: "c"})
	if !strings.HasSuffix(got, "\n\nTopic: ") {
		t.Fatalf("expected empty topic line, got %q", got)
	}
	if strings.Contains(got, "Sent:") {
		t.Fatalf("unexpected sent line without timestamp: %q", got)
	}
}

func TestRenderSentLine(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC)
	a := chain.Announcement{Title: "t", Content: "c", Time: chain.Nanos(ts.UnixNano())}

	got := Render(a)
	wantTime := EscapeMarkdownV2(ts.Local().Format("2006-01-02 15:04:05"))
	if !strings.HasSuffix(got, "\nSent: "+wantTime) {
		t.Fatalf("expected sent line %q, got %q", wantTime, got)
	}
}
