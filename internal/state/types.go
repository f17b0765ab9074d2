package state

import (
	"context"
	"errors"
	"time"

	"annobot/internal/chain"
)

// ErrUnknownSubscriber is returned by registry mutations targeting an
// unregistered destination.
var ErrUnknownSubscriber = errors.New("subscriber not registered")

// Subscriber is one registered chat destination.
//
// ID is the platform-native destination identifier (chat id on Telegram,
// channel or user snowflake on Discord). ThreadID optionally narrows delivery
// to a thread/topic inside the destination; empty means the root destination.
type Subscriber struct {
	ID       string `json:"id"`
	Notify   bool   `json:"notify"`
	ThreadID string `json:"thread_id"`
}

// Watermark holds the last successfully delivered announcement. The full
// record is kept because the query filter reads its time and dedup reads
// its id.
type Watermark struct {
	LastAnnouncement *chain.Announcement `json:"lastAnnouncement,omitempty"`
}

// Config configures one bot instance's persistence.
//
// Driver values:
//   - "file": human-readable JSON documents, full replace on every save
//   - "sqlite": SQLite database file
//
// Path is a prefix; drivers derive their file names from it
// (e.g. "./data/telegram" -> "telegram.chats.json" + "telegram.storage.json").
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API behind the registry and watermark.
// Saves replace the full document; there are no migrations or versioning.
type Store interface {
	LoadSubscribers(ctx context.Context) ([]Subscriber, error)
	SaveSubscribers(ctx context.Context, subs []Subscriber) error
	LoadWatermark(ctx context.Context) (Watermark, error)
	SaveWatermark(ctx context.Context, wm Watermark) error
	Close() error
}
