package connector

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// RedditConfig configures the Reddit connector.
type RedditConfig struct {
	BaseURL  string
	Sort     string
	MaxPages int
	Session  SessionConfig
}

// Reddit harvests posts through Reddit's public search.json listing. No
// login is needed.
type Reddit struct {
	base     *url.URL
	sort     string
	maxPages int
	sess     *session
}

// NewReddit creates a Reddit connector.
func NewReddit(cfg RedditConfig) (*Reddit, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://www.reddit.com"
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, eris.Wrap(err, "reddit: parse base url")
	}
	sort := cfg.Sort
	if sort == "" {
		sort = "new"
	}
	return &Reddit{
		base:     base,
		sort:     sort,
		maxPages: cfg.MaxPages,
		sess:     newSession("reddit", cfg.Session),
	}, nil
}

func (r *Reddit) Source() model.Source { return model.SourceReddit }

// Login is a no-op: public search needs no session.
func (r *Reddit) Login(context.Context, Credentials) error { return nil }

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Author    string `json:"author"`
	Subreddit string `json:"subreddit"`
	Title     string `json:"title"`
	Selftext  string `json:"selftext"`
	Permalink string `json:"permalink"`
}

// Search pages through the listing using its "after" cursor.
func (r *Reddit) Search(ctx context.Context, req SearchRequest) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		log := zap.L().With(zap.String("source", "reddit"), zap.String("query", req.Query))
		lastPage := PageBudget(req.Limit, r.maxPages)
		after := req.PageToken
		yielded := 0

		for page := req.startPage(); page <= lastPage && yielded < req.Limit; page++ {
			if ctx.Err() != nil {
				return
			}

			listing, err := r.fetchPage(ctx, req.Query, after, min(req.Limit-yielded, 100))
			if err != nil {
				// Without a fresh cursor the next page would repeat this one,
				// so any page error ends the listing.
				yield(Fragment{}, eris.Wrapf(err, "reddit: page %d", page))
				return
			}

			count := 0
			for _, child := range listing.Data.Children {
				if yielded >= req.Limit {
					break
				}
				f, ok := r.fragment(child.Data, page)
				if !ok {
					continue
				}
				if !yield(f, nil) {
					return
				}
				yielded++
				count++
			}

			after = listing.Data.After
			log.Debug("harvested page", zap.Int("page", page), zap.Int("fragments", count))
			req.pageDone(PageDone{Page: page, NextToken: after, Yielded: count})
			if after == "" {
				return
			}
		}
	}
}

func (r *Reddit) fetchPage(ctx context.Context, query, after string, limit int) (*redditListing, error) {
	u := *r.base
	u.Path = "/search.json"
	q := url.Values{
		"q":        {query},
		"sort":     {r.sort},
		"limit":    {strconv.Itoa(max(limit, 1))},
		"raw_json": {"1"},
	}
	if after != "" {
		q.Set("after", after)
	}
	u.RawQuery = q.Encode()
	target := u.String()

	resp, err := r.sess.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, fetchOptions{})
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(resp.body, &listing); err != nil {
		return nil, eris.Wrapf(ErrExtraction, "decode listing: %v", err)
	}
	return &listing, nil
}

func (r *Reddit) fragment(p redditPost, page int) (Fragment, bool) {
	body := strings.TrimSpace(p.Selftext)
	if body == "[removed]" || body == "[deleted]" {
		return Fragment{}, false
	}
	content := strings.TrimSpace(p.Title + "\n\n" + body)
	if p.Author == "" || p.Author == "[deleted]" || content == "" {
		return Fragment{}, false
	}

	f := Fragment{
		Name:     p.Author,
		Headline: "Author on r/" + p.Subreddit,
		Company:  "Unknown (Reddit)",
		Content:  content,
		Page:     page,
	}
	if p.Permalink != "" {
		f.URL = r.base.ResolveReference(&url.URL{Path: p.Permalink}).String()
	}
	return f, true
}
