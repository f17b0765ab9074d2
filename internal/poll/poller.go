// Package poll drives the periodic fetch+dispatch cycle.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"annobot/internal/chain"
	"annobot/internal/state"
	"annobot/pkg/logx"
)

// Fetcher produces new announcements past the watermark.
type Fetcher interface {
	Announcements(ctx context.Context, since chain.Nanos) ([]chain.Announcement, error)
}

// Sink receives fetched announcement batches.
type Sink interface {
	Dispatch(ctx context.Context, anns []chain.Announcement)
}

type Poller struct {
	fetcher Fetcher
	sink    Sink
	marks   *state.Watermarks
	spec    ParsedSpec
	log     logx.Logger

	// inFlight guards against overlapping cycles: a tick that fires while a
	// cycle is still running is skipped rather than run concurrently.
	inFlight atomic.Bool
}

func New(fetcher Fetcher, sink Sink, marks *state.Watermarks, spec ParsedSpec, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poller{fetcher: fetcher, sink: sink, marks: marks, spec: spec, log: log}
}

// Run polls once immediately, then per the schedule, until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.Cycle(ctx)

	switch p.spec.Kind {
	case SpecInterval:
		ticker := time.NewTicker(p.spec.Every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				p.Cycle(ctx)
			}
		}

	case SpecCron:
		c := cron.New()
		if _, err := c.AddFunc(p.spec.Cron, func() { p.Cycle(ctx) }); err != nil {
			return fmt.Errorf("cron schedule %q: %w", p.spec.Cron, err)
		}
		c.Start()
		<-ctx.Done()
		<-c.Stop().Done()
		return nil

	default:
		return fmt.Errorf("unknown schedule kind %d", p.spec.Kind)
	}
}

// Cycle runs one fetch+dispatch pass. Fetch failures skip the cycle with the
// watermark untouched; the next tick retries naturally.
func (p *Poller) Cycle(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.log.Debug("poll cycle still running; skipping tick")
		return
	}
	defer p.inFlight.Store(false)

	var since chain.Nanos
	if last := p.marks.Last(); last != nil {
		since = last.Time
	}

	anns, err := p.fetcher.Announcements(ctx, since)
	if err != nil {
		if errors.Is(err, chain.ErrNoContract) {
			p.log.Error("announcement contract not configured; skipping cycle")
		} else {
			p.log.Warn("fetch failed; skipping cycle", logx.Err(err))
		}
		return
	}
	if len(anns) == 0 {
		return
	}
	p.log.Info("got announcements", logx.Int("count", len(anns)))
	p.sink.Dispatch(ctx, anns)
}
