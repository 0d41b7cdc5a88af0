package pipeline

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/internal/checkpoint"
	"github.com/priyam-jain-2002/vibemarket/internal/classify"
	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/outreach"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	"github.com/priyam-jain-2002/vibemarket/internal/scoring"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// frag builds a fragment with enough content to pass normalization. Names
// starting with "A" classify as A_PLUS, everything else as B.
func frag(name string) connector.Fragment {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	return connector.Fragment{
		Name:     name,
		Headline: "Founder at " + name + " Trading",
		Content:  "We lose orders every single week because the whole team tracks them in chat threads and spreadsheets.",
		URL:      "https://www.linkedin.com/in/" + slug,
	}
}

// fakeClassifier answers from the lead name and counts calls per lead.
type fakeClassifier struct {
	estimate float64
	costUSD  float64
	// fail maps a lead name to the error its classification returns.
	fail   map[string]error
	onCall func(lead model.Lead)

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeClassifier) Estimate(model.Lead) float64 { return f.estimate }

func (f *fakeClassifier) Classify(_ context.Context, lead model.Lead) (*classify.Result, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[lead.IdentityKey]++
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(lead)
	}
	if err := f.fail[lead.Name]; err != nil {
		return nil, err
	}

	a := scoring.Assessment{
		PainPoints:       []string{"slow invoicing"},
		PainClarity:      "EXPLICIT",
		Urgency:          "LOW",
		Authority:        "INFLUENCER",
		SpecificityScore: 4,
	}
	if strings.HasPrefix(lead.Name, "A") {
		a = scoring.Assessment{
			PainPoints:       []string{"lost orders"},
			PainClarity:      "EXPLICIT",
			Urgency:          "HIGH",
			Authority:        "DECISION_MAKER",
			SpecificityScore: 8,
		}
	}
	return &classify.Result{Assessment: a, CostUSD: f.costUSD}, nil
}

// callCounts returns a copy of the per-key call counts.
func (f *fakeClassifier) callCounts() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.calls))
	for k, v := range f.calls {
		out[k] = v
	}
	return out
}

// scriptedConnector serves fixed pages. pageErr makes a page fail instead.
type scriptedConnector struct {
	source   model.Source
	loginErr error
	pages    [][]connector.Fragment
	pageErr  map[int]error
	// pageDone runs after a page is served and before its cursor is reported.
	pageDone func(page int)

	mu   sync.Mutex
	reqs []connector.SearchRequest
}

func (s *scriptedConnector) Source() model.Source { return s.source }

func (s *scriptedConnector) Login(context.Context, connector.Credentials) error { return s.loginErr }

func (s *scriptedConnector) Search(ctx context.Context, req connector.SearchRequest) iter.Seq2[connector.Fragment, error] {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()

	return func(yield func(connector.Fragment, error) bool) {
		for page := max(req.StartPage, 1); page <= len(s.pages); page++ {
			if ctx.Err() != nil {
				return
			}
			if err := s.pageErr[page]; err != nil {
				if !yield(connector.Fragment{}, err) {
					return
				}
				if strings.Contains(err.Error(), "authentication") {
					return
				}
				continue
			}
			for _, f := range s.pages[page-1] {
				f.Page = page
				if !yield(f, nil) {
					return
				}
			}
			if s.pageDone != nil {
				s.pageDone(page)
			}
			if req.OnPage != nil {
				req.OnPage(connector.PageDone{Page: page, NextToken: fmt.Sprint(page + 1), Yielded: len(s.pages[page-1])})
			}
		}
	}
}

func (s *scriptedConnector) lastRequest() connector.SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

type memorySink struct {
	mu      sync.Mutex
	records []model.Record
	err     error
	closed  bool
}

func (m *memorySink) Emit(_ context.Context, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memorySink) byKey() map[string]model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Record, len(m.records))
	for _, r := range m.records {
		out[r.Lead.IdentityKey] = r
	}
	return out
}

// ctxStore refuses saves on a done context, the way a database store does.
type ctxStore struct {
	checkpoint.Store
}

func (s ctxStore) Save(ctx context.Context, cp *model.RunCheckpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Save(ctx, cp)
}

func newStore(t *testing.T) checkpoint.Store {
	t.Helper()
	s, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func templateGenerator(t *testing.T) *outreach.Generator {
	t.Helper()
	w, err := outreach.NewTemplateWriter(nil)
	require.NoError(t, err)
	return outreach.New(w, model.Taxonomy{Company: model.CompanyProfile{Name: "Ledgerly"}})
}

func testOptions(concurrency int) Options {
	return Options{
		Query:      "order tracking",
		Limit:      50,
		DedupScope: checkpoint.ScopeAll,
		Classify: classify.Config{
			Concurrency: concurrency,
			Retry:       resilience.RetryConfig{MaxAttempts: 2, Sleep: resilience.NoSleep},
		},
		Now: func() time.Time { return fixedNow },
	}
}
