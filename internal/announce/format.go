// Package announce renders announcement records as chat messages.
package announce

import (
	"strings"

	"annobot/internal/chain"
)

// escapeSet is the markdown escape contract shared by both platforms.
const escapeSet = "_-[]()~>#+=|{}.!"

// EscapeMarkdownV2 prefixes every occurrence of a character from the escape
// set with a single backslash. Characters outside the set pass through.
func EscapeMarkdownV2(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x80 && strings.ContainsRune(escapeSet, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

const sentTimeLayout = "2006-01-02 15:04:05"

// Render formats one announcement: bold title, blank line, body, a topic
// line (empty when the record has none), and a sent line when the record
// carries a timestamp (nanoseconds, rendered in local time).
func Render(a chain.Announcement) string {
	var b strings.Builder
	b.WriteString("**")
	b.WriteString(EscapeMarkdownV2(a.Title))
	b.WriteString("**\n\n")
	b.WriteString(EscapeMarkdownV2(a.Content))
	b.WriteString("\n\nTopic: ")
	b.WriteString(EscapeMarkdownV2(a.TopicName()))
	if !a.Time.IsZero() {
		b.WriteString("\nSent: ")
		b.WriteString(EscapeMarkdownV2(a.Time.Time().Local().Format(sentTimeLayout)))
	}
	return b.String()
}
