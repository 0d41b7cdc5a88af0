package connector

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// LinkedIn card selectors on the content search results page.
const (
	selPost    = ".feed-shared-update-v2"
	selName    = ".feed-shared-actor__name"
	selTitle   = ".feed-shared-actor__description"
	selText    = ".feed-shared-text"
	selProfile = ".feed-shared-actor__container-link"
)

// LinkedInConfig configures the LinkedIn session connector.
type LinkedInConfig struct {
	BaseURL  string
	MaxPages int
	Session  SessionConfig
}

// LinkedIn harvests posts from LinkedIn content search over an authenticated
// web session.
type LinkedIn struct {
	base     *url.URL
	maxPages int
	sess     *session
	loggedIn bool
}

// NewLinkedIn creates a LinkedIn connector.
func NewLinkedIn(cfg LinkedInConfig) (*LinkedIn, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://www.linkedin.com"
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, eris.Wrap(err, "linkedin: parse base url")
	}
	return &LinkedIn{
		base:     base,
		maxPages: cfg.MaxPages,
		sess:     newSession("linkedin", cfg.Session),
	}, nil
}

func (l *LinkedIn) Source() model.Source { return model.SourceLinkedIn }

func (l *LinkedIn) endpoint(path string, q url.Values) string {
	u := *l.base
	u.Path = path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Login posts credentials to the login form. The session is established only
// when the final redirect lands on the feed; a security challenge or the
// login form coming back fails with ErrAuthentication.
func (l *LinkedIn) Login(ctx context.Context, creds Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return eris.Wrap(ErrAuthentication, "linkedin: missing credentials")
	}

	loginURL := l.endpoint("/login", nil)
	page, err := l.sess.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	}, fetchOptions{})
	if err != nil {
		return eris.Wrap(err, "linkedin: load login page")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.body))
	if err != nil {
		return eris.Wrapf(ErrExtraction, "linkedin: parse login page: %v", err)
	}
	csrf, _ := doc.Find(`input[name="loginCsrfParam"]`).Attr("value")
	if csrf == "" {
		return eris.Wrap(ErrExtraction, "linkedin: login form has no csrf token")
	}

	form := url.Values{
		"session_key":      {creds.Username},
		"session_password": {creds.Password},
		"loginCsrfParam":   {csrf},
	}
	submitURL := l.endpoint("/checkpoint/lg/login-submit", nil)
	result, err := l.sess.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, fetchOptions{})
	if err != nil {
		return eris.Wrap(err, "linkedin: submit login")
	}

	final := result.finalURL.Path
	switch {
	case strings.Contains(final, "/feed"):
		l.loggedIn = true
		zap.L().Info("linkedin session established")
		return nil
	case strings.HasPrefix(final, "/checkpoint/challenge"):
		return eris.Wrap(ErrAuthentication, "linkedin: security challenge on login")
	default:
		return eris.Wrapf(ErrAuthentication, "linkedin: login rejected (landed on %s)", final)
	}
}

// Search walks content search result pages from req.StartPage until the page
// budget or limit is reached.
func (l *LinkedIn) Search(ctx context.Context, req SearchRequest) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		if !l.loggedIn {
			yield(Fragment{}, eris.Wrap(ErrAuthentication, "linkedin: search before login"))
			return
		}

		log := zap.L().With(zap.String("source", "linkedin"), zap.String("query", req.Query))
		lastPage := PageBudget(req.Limit, l.maxPages)
		yielded := 0

		for page := req.startPage(); page <= lastPage && yielded < req.Limit; page++ {
			if ctx.Err() != nil {
				return
			}

			frags, err := l.fetchPage(ctx, req.Query, page)
			if err != nil {
				if !yield(Fragment{}, eris.Wrapf(err, "linkedin: page %d", page)) {
					return
				}
				if ctx.Err() != nil || isFatal(err) {
					return
				}
				continue
			}

			count := 0
			for _, f := range frags {
				if yielded >= req.Limit {
					break
				}
				if !yield(f, nil) {
					return
				}
				yielded++
				count++
			}
			log.Debug("harvested page", zap.Int("page", page), zap.Int("fragments", count))
			req.pageDone(PageDone{Page: page, NextToken: strconv.Itoa(page + 1), Yielded: count})

			if len(frags) == 0 {
				return
			}
		}
	}
}

func (l *LinkedIn) fetchPage(ctx context.Context, query string, page int) ([]Fragment, error) {
	q := url.Values{"keywords": {query}}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	target := l.endpoint("/search/results/content/", q)

	resp, err := l.sess.fetch(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	}, fetchOptions{detectBlocks: true})
	if err != nil {
		return nil, err
	}
	return parseLinkedInPosts(resp.body, l.base, page)
}

// parseLinkedInPosts extracts fragments from a search results page. Cards
// without a name or text are skipped, not reported.
func parseLinkedInPosts(body []byte, base *url.URL, page int) ([]Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(ErrExtraction, "parse results: %v", err)
	}

	posts := doc.Find(selPost)
	if posts.Length() == 0 && doc.Find("main, .search-results-container").Length() == 0 {
		return nil, eris.Wrap(ErrExtraction, "results page has no recognizable layout")
	}

	var out []Fragment
	posts.Each(func(i int, s *goquery.Selection) {
		f := Fragment{
			Name:     squash(s.Find(selName).First().Text()),
			Headline: squash(s.Find(selTitle).First().Text()),
			Content:  strings.TrimSpace(s.Find(selText).First().Text()),
			Page:     page,
		}
		if href, ok := s.Find(selProfile).First().Attr("href"); ok {
			f.URL = resolve(base, href)
		}
		if f.Name == "" || f.Content == "" {
			zap.L().Debug("skipping incomplete card", zap.Int("page", page), zap.Int("index", i))
			return
		}
		out = append(out, f)
	})
	return out, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isFatal reports whether a page error should end the search.
func isFatal(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
