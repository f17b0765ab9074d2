// Package transport defines the platform-neutral surface between the
// announcement pipeline and the chat platform clients.
package transport

import "context"

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound chat message normalized across platforms.
// Identifiers are platform-native, carried as opaque strings.
type Message struct {
	ChatID       string
	ThreadID     string // thread/topic the message arrived in ("" if none)
	FromID       string
	FromUsername string
	Text         string
	IsGroup      bool // group/channel context vs. a private one-to-one chat
}

type ChatTarget struct {
	ChatID   string
	ThreadID string
}

// DeliveryStatus is the closed classification of a delivery attempt.
// Adapters translate platform-specific errors into exactly one of these;
// nothing outside an adapter inspects platform error types.
type DeliveryStatus int

const (
	// Delivered: the message was accepted by the platform.
	Delivered DeliveryStatus = iota
	// TransientFailure: delivery failed but the destination may recover
	// (rate limits, archived threads, resolution hiccups). Subscriber kept.
	TransientFailure
	// PermanentFailure: the destination is gone or the bot was blocked or
	// removed. The subscriber should be pruned.
	PermanentFailure
)

func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case TransientFailure:
		return "transient"
	case PermanentFailure:
		return "permanent"
	default:
		return "unknown"
	}
}

// Adapter is the per-platform client surface.
type Adapter interface {
	// Start begins receiving inbound messages, forwarding them to out.
	// It returns once receiving is underway; delivery of updates continues
	// until Stop or context cancellation.
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Deliver sends an announcement message, honoring the target's thread if
	// set, and classifies any failure. err carries detail for the log; the
	// status alone drives registry pruning.
	Deliver(ctx context.Context, to ChatTarget, text string) (DeliveryStatus, error)

	// Reply sends a plain command response back to the chat (and thread)
	// the command arrived in.
	Reply(ctx context.Context, to ChatTarget, text string) error

	// IsAdmin reports whether the user holds the platform's manage/admin
	// capability for the chat. Callers treat an error as "not authorized".
	IsAdmin(ctx context.Context, chatID, userID string) (bool, error)
}
