// Package worker hosts the tracker's background jobs: the title-stats
// recompute consumer and the history retention sweeper.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anime-tracker/internal/catalog"
	"github.com/example/anime-tracker/internal/platform/events"
)

// TitleInvalidator drops a title from a read cache after its stored
// aggregates change.
type TitleInvalidator interface {
	Invalidate(id uuid.UUID)
}

// StartStatsConsumer pull-subscribes to tracker.progress.updated and
// recomputes the affected title's aggregate counters. The recompute is
// from-scratch, so dropped or redelivered messages self-heal on the next
// event for the same title; no idempotency bookkeeping is needed.
// inv may be nil when no read cache sits in front of the store.
func StartStatsConsumer(ctx context.Context, nc *nats.Conn, titles catalog.Store, inv TitleInvalidator, log *zap.Logger) {
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("stats consumer: jetstream init failed", zap.Error(err))
		return
	}

	sub, err := js.PullSubscribe(events.SubjectProgressUpdated, "tracker_title_stats")
	if err != nil {
		log.Warn("stats consumer: subscribe failed", zap.Error(err))
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(50, nats.MaxWait(2*time.Second))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				log.Warn("stats consumer: fetch failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			// Coalesce per title so a burst of updates costs one recompute.
			titleIDs := make(map[uuid.UUID]struct{}, len(msgs))
			for _, m := range msgs {
				var ev events.Event
				if err := json.Unmarshal(m.Data, &ev); err != nil {
					log.Warn("stats consumer: invalid payload", zap.Error(err))
					_ = m.Ack()
					continue
				}
				id, err := uuid.Parse(ev.TitleID)
				if err != nil {
					_ = m.Ack()
					continue
				}
				titleIDs[id] = struct{}{}
			}

			failed := false
			for id := range titleIDs {
				if err := titles.RecomputeStats(ctx, id); err != nil {
					log.Warn("stats consumer: recompute failed",
						zap.String("title_id", id.String()), zap.Error(err))
					failed = true
					continue
				}
				if inv != nil {
					inv.Invalidate(id)
				}
			}

			for _, m := range msgs {
				if failed {
					_ = m.Nak()
					continue
				}
				_ = m.Ack()
			}
		}
	}()
}
