package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/dedup"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/normalize"
)

// harvest logs in and walks the connector, admitting new leads into the
// checkpoint's pending list. Each finished page moves the cursor and records
// its admitted leads in one write. Only authentication failures and
// cancellation end the stage early; anything else is counted and skipped.
func (p *Pipeline) harvest(ctx context.Context, r *run) error {
	log := r.log.With(zap.String("stage", "harvest"))

	if err := p.conn.Login(ctx, p.opts.Credentials); err != nil {
		r.tally.fail(model.FailureAuthentication)
		return eris.Wrap(err, "pipeline: login")
	}

	var page []model.Lead
	req := connector.SearchRequest{
		Query:     r.query,
		Limit:     p.opts.Limit,
		StartPage: r.startAt,
		PageToken: r.token,
		OnPage: func(done connector.PageDone) {
			if err := r.ckpt.SetCursor(context.WithoutCancel(ctx), done.Page, done.NextToken, page...); err != nil {
				r.tally.fail(model.FailureCheckpoint)
			}
			log.Debug("pipeline: page checkpointed",
				zap.Int("page", done.Page),
				zap.Int("fragments", done.Yielded),
				zap.Int("admitted", len(page)),
			)
			page = nil
		},
	}

	var fatal error
	for frag, err := range p.conn.Search(ctx, req) {
		if err != nil {
			switch {
			case errors.Is(err, connector.ErrAuthentication):
				r.tally.fail(model.FailureAuthentication)
				fatal = err
			case errors.Is(err, connector.ErrRateLimited):
				r.tally.fail(model.FailureRateLimited)
			default:
				r.tally.fail(model.FailureExtraction)
			}
			log.Warn("pipeline: page failed", zap.Error(err))
			continue
		}

		r.tally.harvested()
		lead, err := normalize.Normalize(frag, p.conn.Source(), p.opts.Now())
		if err != nil {
			r.tally.fail(model.FailureExtraction)
			log.Debug("pipeline: fragment skipped", zap.String("name", frag.Name), zap.Error(err))
			continue
		}

		switch err := r.seen.Admit(lead); {
		case err == nil:
			r.tally.admitted()
			page = append(page, lead)
		case errors.Is(err, dedup.ErrDuplicateConflict):
			r.tally.fail(model.FailureDuplicateConflict)
			log.Info("pipeline: cross-source duplicate", zap.String("identity_key", lead.IdentityKey), zap.Error(err))
		default:
			r.tally.duplicate()
		}
	}

	// Leads from a page that never finished still get classified; the page
	// itself is fetched again on resume and dedup drops them then.
	if err := r.ckpt.AddPending(context.WithoutCancel(ctx), page...); err != nil {
		r.tally.fail(model.FailureCheckpoint)
	}

	switch {
	case fatal != nil:
		return eris.Wrap(fatal, "pipeline: harvest")
	case ctx.Err() != nil:
		return eris.Wrap(ctx.Err(), "pipeline: harvest cancelled")
	}
	log.Info("pipeline: harvest finished", zap.Int("pending", len(r.ckpt.Remaining())))
	return nil
}
