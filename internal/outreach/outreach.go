// Package outreach drafts personalized messages for qualified leads.
//
// Generation is best effort: every error here leaves the lead qualified and
// the record is emitted as incomplete.
package outreach

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	// ErrNotQualified means the lead's band is below A.
	ErrNotQualified = eris.New("outreach: lead is not qualified")

	// ErrNoPainPoints means the analysis names no pain to reference.
	ErrNoPainPoints = eris.New("outreach: analysis has no pain points")

	// ErrAlreadyAttempted means generation already ran for the lead in this run.
	ErrAlreadyAttempted = eris.New("outreach: generation already attempted")

	// ErrUnreferenced means the draft does not mention any detected pain point.
	ErrUnreferenced = eris.New("outreach: draft does not reference a pain point")

	// ErrEmptyDraft means the writer produced no text.
	ErrEmptyDraft = eris.New("outreach: empty draft")
)

// Brief is everything a Writer needs for one draft.
type Brief struct {
	Lead     model.Lead
	Analysis model.Analysis
	Vibe     model.VibeProfile
	Taxonomy model.Taxonomy
}

// Writer produces the body of a draft.
type Writer interface {
	Name() string
	Write(ctx context.Context, b Brief) (string, error)
}

// Generator enforces the generation preconditions and the one-attempt-per-lead
// rule around a Writer.
type Generator struct {
	writer   Writer
	taxonomy model.Taxonomy
	now      func() time.Time

	mu        sync.Mutex
	attempted map[string]struct{}
}

// New returns a Generator.
func New(writer Writer, taxonomy model.Taxonomy) *Generator {
	return &Generator{
		writer:    writer,
		taxonomy:  taxonomy,
		now:       time.Now,
		attempted: make(map[string]struct{}),
	}
}

// Generate drafts a message for lead.
func (g *Generator) Generate(ctx context.Context, lead model.Lead, analysis model.Analysis) (*model.OutreachMessage, error) {
	if !analysis.Band.Qualifies() {
		return nil, eris.Wrapf(ErrNotQualified, "outreach: band %s", analysis.Band)
	}
	if len(analysis.PainPoints) == 0 {
		return nil, ErrNoPainPoints
	}

	g.mu.Lock()
	if _, ok := g.attempted[lead.IdentityKey]; ok {
		g.mu.Unlock()
		return nil, ErrAlreadyAttempted
	}
	g.attempted[lead.IdentityKey] = struct{}{}
	g.mu.Unlock()

	vibe := VibeOf(lead.RawContent)
	body, err := g.writer.Write(ctx, Brief{Lead: lead, Analysis: analysis, Vibe: vibe, Taxonomy: g.taxonomy})
	if err != nil {
		return nil, eris.Wrapf(err, "outreach: %s writer", g.writer.Name())
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyDraft
	}
	if !References(body, analysis.PainPoints) {
		return nil, ErrUnreferenced
	}

	zap.L().Debug("outreach: drafted",
		zap.String("identity_key", lead.IdentityKey),
		zap.String("vibe", string(vibe)),
		zap.String("writer", g.writer.Name()),
	)
	return &model.OutreachMessage{
		LeadIdentityKey: lead.IdentityKey,
		BodyText:        body,
		VibeProfile:     vibe,
		GeneratedAt:     g.now().UTC(),
		Generator:       g.writer.Name(),
	}, nil
}

// minRefWord is the shortest pain point word that counts as a reference.
const minRefWord = 5

// References reports whether body mentions one of painPoints, either as the
// full phrase or through any word of at least minRefWord letters.
func References(body string, painPoints []string) bool {
	lower := strings.ToLower(body)
	for _, p := range painPoints {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.Contains(lower, p) {
			return true
		}
		for _, w := range strings.FieldsFunc(p, func(r rune) bool { return !unicode.IsLetter(r) }) {
			if len([]rune(w)) >= minRefWord && strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}
