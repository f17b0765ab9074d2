package state

import (
	"context"
	"sync"

	"annobot/internal/chain"
	"annobot/pkg/logx"
)

// Registry is the in-memory subscriber list backed by a Store. Every
// mutation persists immediately; reads never touch the store.
//
// Subscribers keep their registration order; ids are unique.
type Registry struct {
	mu    sync.Mutex
	store Store
	subs  []Subscriber
	log   logx.Logger
}

func OpenRegistry(ctx context.Context, store Store, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	subs, err := store.LoadSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	return &Registry{store: store, subs: subs, log: log}, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *Registry) Get(id string) (Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == id {
			return s, true
		}
	}
	return Subscriber{}, false
}

// Ensure registers the destination if it is unseen. Idempotent; new entries
// start with notifications off.
func (r *Registry) Ensure(ctx context.Context, id string) (created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == id {
			return false, nil
		}
	}
	r.subs = append(r.subs, Subscriber{ID: id, Notify: false, ThreadID: ""})
	if err := r.persistLocked(ctx); err != nil {
		// roll back the in-memory append so memory and disk stay aligned
		r.subs = r.subs[:len(r.subs)-1]
		return false, err
	}
	return true, nil
}

// Enable turns on notifications for a known subscriber, replacing its thread
// target (empty means the root destination).
func (r *Registry) Enable(ctx context.Context, id, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			prev := r.subs[i]
			r.subs[i].Notify = true
			r.subs[i].ThreadID = threadID
			if err := r.persistLocked(ctx); err != nil {
				r.subs[i] = prev
				return err
			}
			return nil
		}
	}
	return ErrUnknownSubscriber
}

func (r *Registry) Disable(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			prev := r.subs[i]
			r.subs[i].Notify = false
			if err := r.persistLocked(ctx); err != nil {
				r.subs[i] = prev
				return err
			}
			return nil
		}
	}
	return ErrUnknownSubscriber
}

// Remove deletes the subscriber outright. Used by the dispatcher when a
// platform reports the destination gone or the bot blocked.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			removed := r.subs[i]
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			if err := r.persistLocked(ctx); err != nil {
				// reinsert at the original position
				r.subs = append(r.subs[:i], append([]Subscriber{removed}, r.subs[i:]...)...)
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// Relevant returns opted-in subscribers in registration order.
func (r *Registry) Relevant() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, s := range r.subs {
		if s.Notify {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) persistLocked(ctx context.Context) error {
	cp := make([]Subscriber, len(r.subs))
	copy(cp, r.subs)
	return r.store.SaveSubscribers(ctx, cp)
}

// Watermarks tracks the last delivered announcement in memory and persists
// it on Flush, once per dispatched batch.
type Watermarks struct {
	mu    sync.Mutex
	store Store
	wm    Watermark
	log   logx.Logger
}

func OpenWatermarks(ctx context.Context, store Store, log logx.Logger) (*Watermarks, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	wm, err := store.LoadWatermark(ctx)
	if err != nil {
		return nil, err
	}
	return &Watermarks{store: store, wm: wm, log: log}, nil
}

// Last returns the last delivered announcement, or nil before any delivery.
func (w *Watermarks) Last() *chain.Announcement {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wm.LastAnnouncement == nil {
		return nil
	}
	cp := *w.wm.LastAnnouncement
	return &cp
}

// Advance moves the watermark to a. Ids only ever move forward.
func (w *Watermarks) Advance(a chain.Announcement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wm.LastAnnouncement != nil && a.ID <= w.wm.LastAnnouncement.ID {
		return
	}
	cp := a
	w.wm.LastAnnouncement = &cp
}

// Flush persists the current watermark.
func (w *Watermarks) Flush(ctx context.Context) error {
	w.mu.Lock()
	wm := w.wm
	w.mu.Unlock()
	return w.store.SaveWatermark(ctx, wm)
}
