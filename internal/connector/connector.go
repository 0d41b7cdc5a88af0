// Package connector harvests raw lead fragments from external sources.
//
// A Connector establishes its session once per run and then serves lazy,
// finite searches. Errors are page-scoped: the sequence yields an error for a
// bad page and moves on, except for ErrAuthentication, which ends it.
package connector

import (
	"context"
	"iter"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	// ErrAuthentication means the session was refused or challenged. It is
	// fatal for the run; no evasion is attempted.
	ErrAuthentication = eris.New("connector: authentication failed")

	// ErrRateLimited means the source throttled us. Requests are retried with
	// backoff; once attempts run out the current page is skipped.
	ErrRateLimited = eris.New("connector: rate limited")

	// ErrExtraction means a page could not be fetched or parsed. The run
	// continues with the pages that worked.
	ErrExtraction = eris.New("connector: extraction failed")
)

// Fragment is one raw, unnormalized search hit.
type Fragment struct {
	Name     string `json:"name" yaml:"name"`
	Headline string `json:"headline" yaml:"headline"`
	// Company overrides the company parsed from Headline when set.
	Company string `json:"company,omitempty" yaml:"company,omitempty"`
	Content string `json:"content" yaml:"content"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Page    int    `json:"-" yaml:"-"`
}

// PageDone reports a fully harvested page. NextToken is the opaque cursor a
// resumed search needs to fetch the page after it.
type PageDone struct {
	Page      int
	NextToken string
	Yielded   int
}

// SearchRequest describes one search. Pages are 1-based.
type SearchRequest struct {
	Query string
	Limit int
	// StartPage is the first page to fetch; 0 means 1.
	StartPage int
	// PageToken is the NextToken of the page before StartPage.
	PageToken string
	// OnPage is called after every page whose fragments were all yielded.
	OnPage func(PageDone)
}

func (r SearchRequest) startPage() int {
	return max(r.StartPage, 1)
}

func (r SearchRequest) pageDone(p PageDone) {
	if r.OnPage != nil {
		r.OnPage(p)
	}
}

// Credentials authenticate a session connector.
type Credentials struct {
	Username string
	Password string
}

// Connector harvests fragments from one source.
type Connector interface {
	Source() model.Source
	Login(ctx context.Context, creds Credentials) error
	Search(ctx context.Context, req SearchRequest) iter.Seq2[Fragment, error]
}

// PageBudget is how many pages a search for limit fragments may visit: one
// page per ten results plus one, capped at maxPages.
func PageBudget(limit, maxPages int) int {
	if maxPages <= 0 {
		maxPages = 10
	}
	return min(limit/10+1, maxPages)
}
