package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/classify"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// classify sends the pending, unprocessed leads through the orchestrator.
// Each finished lead is banded, drafted when it qualifies, emitted, and only
// then marked processed.
func (p *Pipeline) classify(ctx context.Context, r *run) error {
	leads := r.ckpt.Remaining()
	log := r.log.With(zap.String("stage", "classify"))
	log.Info("pipeline: classifying", zap.Int("leads", len(leads)))

	cfg := p.opts.Classify
	cfg.Marker = r.ckpt
	cfg.OnResult = func(ctx context.Context, out classify.Outcome) {
		p.finishLead(ctx, r, out)
	}

	report, err := classify.New(p.classifier, p.budget, cfg).Run(ctx, leads)
	if report != nil {
		for kind, n := range report.Failures {
			r.tally.failN(kind.FailureKind(), n)
		}
		r.tally.failN(model.FailureCheckpoint, report.CheckpointErrs)
	}
	return err
}

// finishLead turns one classification outcome into a Record and emits it.
// Outreach is best effort: a failed draft leaves the record incomplete.
func (p *Pipeline) finishLead(ctx context.Context, r *run, out classify.Outcome) {
	rec := model.Record{Lead: out.Lead, Analysis: out.Analysis}

	switch {
	case out.Err != nil:
		rec.Failure = &model.Failure{Kind: out.Kind.FailureKind(), Message: out.Err.Error()}
	case out.Analysis.Band.Qualifies():
		if p.generator == nil {
			rec.Incomplete = true
			break
		}
		msg, err := p.generator.Generate(ctx, out.Lead, *out.Analysis)
		if err != nil {
			rec.Incomplete = true
			rec.Failure = &model.Failure{Kind: model.FailureGeneration, Message: err.Error()}
			r.log.Warn("pipeline: outreach failed",
				zap.String("identity_key", out.Lead.IdentityKey),
				zap.Error(err),
			)
			break
		}
		rec.Message = msg
	}

	r.tally.record(rec)
	if p.sink == nil {
		return
	}
	if err := r.tally.emit(ctx, p.sink, rec); err != nil {
		r.tally.fail(model.FailureSink)
		r.log.Error("pipeline: sink emit failed",
			zap.String("identity_key", out.Lead.IdentityKey),
			zap.Error(err),
		)
	}
}
