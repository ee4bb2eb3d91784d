package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ceradon/samwatch/internal/config"
	"github.com/ceradon/samwatch/internal/models"
)

// RecordSource yields raw upstream records one at a time. *samapi.Search
// satisfies it; tests supply in-memory sources.
type RecordSource interface {
	Next() bool
	Record() models.RawRecord
	Err() error
}

// Saver is the single write path into the store. Inserted is false when the
// dedupe key already exists.
type Saver interface {
	Insert(ctx context.Context, scored models.ScoredOpportunity) (inserted bool, err error)
}

// Counts summarizes one run. Skipped covers filtered records, dedupe
// collisions, and per-record processing failures alike.
type Counts struct {
	Processed int
	Saved     int
	Skipped   int
}

// Pipeline drives one ingestion pass: normalize each record, apply the
// configured filters, score, and persist. Records are processed in the order
// the source yields them.
type Pipeline struct {
	Config *config.Config
	Store  Saver
	Log    *zap.Logger

	// Now supplies the scoring date; tests pin it. Defaults to time.Now.
	Now func() time.Time

	// scoreFn overrides Score in tests. Nil means Score.
	scoreFn func(models.Opportunity, *config.Config, time.Time) (int, []string)
}

// Run consumes the source to completion. A failure on a single record is
// logged and counted as skipped; a source failure (retry exhaustion, 4xx) or
// a storage I/O failure aborts the run.
func (p *Pipeline) Run(ctx context.Context, source RecordSource) (Counts, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}

	var counts Counts
	for source.Next() {
		counts.Processed++
		saved, err := p.process(ctx, source.Record(), now())
		if err != nil {
			return counts, err
		}
		if saved {
			counts.Saved++
		} else {
			counts.Skipped++
		}

		if err := ctx.Err(); err != nil {
			return counts, err
		}
	}
	if err := source.Err(); err != nil {
		return counts, fmt.Errorf("fetching opportunities: %w", err)
	}
	return counts, nil
}

// process handles one record. The returned error is fatal for the run
// (storage I/O); anything that goes wrong before the insert degrades to a
// logged skip.
func (p *Pipeline) process(ctx context.Context, raw models.RawRecord, now time.Time) (saved bool, err error) {
	scored, keep := p.scoreRecord(raw, now)
	if !keep {
		return false, nil
	}
	return p.Store.Insert(ctx, scored)
}

// scoreRecord normalizes, filters, and scores a single record. A panic while
// handling one malformed record must not abort the batch.
func (p *Pipeline) scoreRecord(raw models.RawRecord, now time.Time) (scored models.ScoredOpportunity, keep bool) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("failed to process opportunity", zap.Any("error", r))
			scored, keep = models.ScoredOpportunity{}, false
		}
	}()

	opp := Normalize(raw)
	if p.Config.NoticeTypeExcluded(opp.NoticeType) {
		return models.ScoredOpportunity{}, false
	}
	if opp.NAICS != "" && !p.Config.NAICSIncluded(opp.NAICS) {
		return models.ScoredOpportunity{}, false
	}

	scoreFn := p.scoreFn
	if scoreFn == nil {
		scoreFn = Score
	}
	score, reasons := scoreFn(opp, p.Config, now)
	return models.ScoredOpportunity{Opportunity: opp, Score: score, Reasons: reasons}, true
}
