package mappack

import (
	"context"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// Source supplies the current members of an MX-style mappack so the
// sweeper can re-run its scorer without the caller having to re-derive
// the map-uid set (and their leaderboard identities) on every tick.
type Source interface {
	MXMappacks(ctx context.Context) ([]Mappack, error)
}

// Sweeper periodically re-scores every registered MX-style mappack on a
// cron schedule, so a mappack whose source map set has emptied out gets
// deregistered (§4.8 step 8) even if nobody reads it in the meantime.
// Grounded on the teacher's reset-schedule handling in
// server/core_leaderboard.go, which parses a cron expression with
// cronexpr and computes the next deadline from it rather than running a
// fixed-interval ticker.
type Sweeper struct {
	logger *zap.Logger
	scorer *Scorer
	src    Source
	sched  *cronexpr.Expression
}

// NewSweeper parses schedule (a standard cron expression) and returns a
// Sweeper ready to Run. An invalid schedule is a configuration error and
// is returned immediately rather than discovered at the first tick.
func NewSweeper(logger *zap.Logger, scorer *Scorer, src Source, schedule string) (*Sweeper, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, err
	}
	return &Sweeper{logger: logger, scorer: scorer, src: src, sched: expr}, nil
}

// Run blocks, re-scoring every MX-style mappack at each scheduled tick,
// until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	for {
		next := sw.sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			sw.tick(ctx)
		}
	}
}

func (sw *Sweeper) tick(ctx context.Context) {
	packs, err := sw.src.MXMappacks(ctx)
	if err != nil {
		sw.logger.Error("mappack sweep: failed to list mx mappacks", zap.Error(err))
		return
	}
	for _, mp := range packs {
		if _, err := sw.scorer.Update(ctx, mp); err != nil {
			sw.logger.Error("mappack sweep: update failed",
				zap.String("mappack_id", mp.ID), zap.Error(err))
		}
	}
}
