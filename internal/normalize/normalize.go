// Package normalize turns raw connector fragments into immutable leads and
// derives their identity keys.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// MinContentRunes is the shortest post body worth classifying.
const MinContentRunes = 50

// Unknown fills title and company when the headline does not carry them.
const Unknown = "Unknown"

var (
	// ErrMissingField means the fragment has no name or no content.
	ErrMissingField = eris.New("normalize: missing required field")

	// ErrContentTooShort means the content is below MinContentRunes.
	ErrContentTooShort = eris.New("normalize: content too short")
)

var spaceRe = regexp.MustCompile(`\s+`)

// headlineSeps split "Title at Company" headlines, checked in order.
var headlineSeps = []string{" at ", " @ ", " | "}

// Text NFKC-normalizes s and collapses runs of whitespace into one space.
func Text(s string) string {
	s = norm.NFKC.String(s)
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Content is like Text but keeps paragraph breaks.
func Content(s string) string {
	s = norm.NFKC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	paras := strings.Split(s, "\n\n")
	out := paras[:0]
	for _, p := range paras {
		if p = Text(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

// SplitHeadline splits a profile headline into title and company. Missing
// parts come back as Unknown.
func SplitHeadline(headline string) (title, company string) {
	headline = Text(headline)
	lower := strings.ToLower(headline)
	if len(lower) != len(headline) {
		lower = headline
	}
	for _, sep := range headlineSeps {
		if i := strings.Index(lower, sep); i >= 0 {
			title = strings.TrimSpace(headline[:i])
			company = strings.TrimSpace(headline[i+len(sep):])
			break
		}
	}
	if title == "" && company == "" {
		title = headline
	}
	if title == "" {
		title = Unknown
	}
	if company == "" {
		company = Unknown
	}
	return title, company
}

// CanonicalURL lowercases the host, strips "www.", and drops the query,
// fragment and trailing slash. Unparseable or relative input yields "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + host + path
}

// IdentityKey derives the dedup key of a lead. A canonical origin URL wins;
// otherwise the case-folded name and company are used. Source is not part of
// the key so the same person seen on two sources collides.
func IdentityKey(lead model.Lead) string {
	var basis string
	if u := CanonicalURL(lead.OriginURL); u != "" {
		basis = "url:" + u
	} else {
		fold := cases.Fold() // Casers are stateful; one per call.
		basis = "nc:" + fold.String(Text(lead.Name)) + "|" + fold.String(Text(lead.Company))
	}
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// Normalize builds a Lead from a fragment.
func Normalize(f connector.Fragment, source model.Source, capturedAt time.Time) (model.Lead, error) {
	name := Text(f.Name)
	content := Content(f.Content)
	if name == "" || content == "" {
		return model.Lead{}, eris.Wrapf(ErrMissingField, "normalize: fragment %q", name)
	}
	if utf8.RuneCountInString(content) < MinContentRunes {
		return model.Lead{}, eris.Wrapf(ErrContentTooShort, "normalize: %d runes from %q", utf8.RuneCountInString(content), name)
	}

	title, company := SplitHeadline(f.Headline)
	if c := Text(f.Company); c != "" {
		company = c
	}

	lead := model.Lead{
		Name:       name,
		Title:      title,
		Company:    company,
		Source:     source,
		RawContent: content,
		CapturedAt: capturedAt.UTC(),
		OriginURL:  CanonicalURL(f.URL),
	}
	lead.IdentityKey = IdentityKey(lead)
	return lead, nil
}
