// Package dispatch fans announcements out to opted-in subscribers,
// advancing the delivery watermark and pruning dead destinations.
package dispatch

import (
	"context"

	"golang.org/x/time/rate"

	"annobot/internal/announce"
	"annobot/internal/chain"
	"annobot/internal/state"
	"annobot/internal/transport"
	"annobot/pkg/logx"
)

type Dispatcher struct {
	adapter  transport.Adapter
	registry *state.Registry
	marks    *state.Watermarks
	limiter  *rate.Limiter
	log      logx.Logger
}

// New builds a dispatcher. ratePerSec caps outbound sends so a large
// registry cannot trip platform flood limits; 0 disables the cap.
func New(adapter transport.Adapter, registry *state.Registry, marks *state.Watermarks, ratePerSec int, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Dispatcher{
		adapter:  adapter,
		registry: registry,
		marks:    marks,
		limiter:  limiter,
		log:      log,
	}
}

// Dispatch delivers a batch of announcements (ascending by id) to every
// opted-in subscriber.
//
// Records at or below the watermark are skipped: the server-side since
// filter is inclusive at seconds granularity, so the boundary record comes
// back on every poll. The watermark advances before fan-out, so a crash
// mid-batch re-delivers nothing that was already picked up (at-most-once
// bias), and is persisted once per batch that delivered anything.
func (d *Dispatcher) Dispatch(ctx context.Context, anns []chain.Announcement) {
	if len(anns) == 0 {
		return
	}
	relevant := d.registry.Relevant()
	if len(relevant) == 0 {
		d.log.Debug("no subscribers opted in")
		return
	}

	delivered := 0
	for _, a := range anns {
		if last := d.marks.Last(); last != nil && a.ID <= last.ID {
			continue
		}
		d.marks.Advance(a)

		text := announce.Render(a)
		fields := []logx.Field{
			logx.Uint64("id", a.ID),
			logx.String("title", a.Title),
			logx.Int("subscribers", len(relevant)),
		}
		if !a.Time.IsZero() {
			fields = append(fields, logx.Time("sent", a.Time.Time()))
		}
		d.log.Info("sending announcement", fields...)
		for _, sub := range relevant {
			// One subscriber's failure never aborts the loop.
			d.deliver(ctx, sub, text)
		}
		delivered++
	}

	if delivered > 0 {
		if err := d.marks.Flush(ctx); err != nil {
			d.log.Error("watermark persist failed", logx.Err(err))
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub state.Subscriber, text string) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
	}

	to := transport.ChatTarget{ChatID: sub.ID, ThreadID: sub.ThreadID}
	status, err := d.adapter.Deliver(ctx, to, text)
	switch status {
	case transport.Delivered:
		d.log.Debug("delivered", logx.String("chat", sub.ID))
	case transport.TransientFailure:
		d.log.Warn("delivery failed; subscriber kept", logx.String("chat", sub.ID), logx.Err(err))
	case transport.PermanentFailure:
		d.log.Warn("destination gone; removing subscriber", logx.String("chat", sub.ID), logx.Err(err))
		if removed, rerr := d.registry.Remove(ctx, sub.ID); rerr != nil {
			d.log.Error("subscriber removal failed", logx.String("chat", sub.ID), logx.Err(rerr))
		} else if removed {
			d.log.Info("subscriber removed", logx.String("chat", sub.ID))
		}
	}
}
