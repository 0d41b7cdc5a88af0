package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

const body = "We still reconcile every supplier invoice by hand and it eats two days a month."

func TestText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Acme Inc", Text("  Acme \t\n Inc  "))
	assert.Equal(t, "ACME", Text("ＡＣＭＥ"))
	assert.Equal(t, "", Text(" \n "))
}

func TestContent_KeepsParagraphs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Title line\n\nbody text", Content("Title   line\r\n\r\nbody\ttext"))
	assert.Equal(t, "a b\n\nc", Content("a\nb\n\n\n\nc"))
}

func TestSplitHeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		title   string
		company string
	}{
		{in: "Founder at Rao Textiles", title: "Founder", company: "Rao Textiles"},
		{in: "Head of Ops @ Acme", title: "Head of Ops", company: "Acme"},
		{in: "CTO AT  BigCo", title: "CTO", company: "BigCo"},
		{in: "Operations Lead | Chai Co", title: "Operations Lead", company: "Chai Co"},
		{in: "Freelance designer", title: "Freelance designer", company: Unknown},
		{in: "", title: Unknown, company: Unknown},
		{in: " at Acme", title: "at Acme", company: Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			title, company := SplitHeadline(tt.in)
			assert.Equal(t, tt.title, title)
			assert.Equal(t, tt.company, company)
		})
	}
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://linkedin.com/in/priya", CanonicalURL("https://www.LinkedIn.com/in/priya/?trk=abc#top"))
	assert.Equal(t, "http://reddit.com/r/x/comments/1", CanonicalURL("http://reddit.com/r/x/comments/1/"))
	assert.Equal(t, "", CanonicalURL("/in/relative"))
	assert.Equal(t, "", CanonicalURL(""))
}

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	byURL := IdentityKey(model.Lead{Name: "A", OriginURL: "https://www.linkedin.com/in/a/"})
	assert.Len(t, byURL, 64)
	assert.Equal(t, byURL, IdentityKey(model.Lead{Name: "Other", OriginURL: "https://linkedin.com/in/a?x=1"}))

	nc := IdentityKey(model.Lead{Name: "Priya  Shah", Company: "CHAI Co"})
	assert.Equal(t, nc, IdentityKey(model.Lead{Name: "priya shah", Company: "chai co"}))
	assert.NotEqual(t, nc, byURL)

	assert.Equal(t,
		IdentityKey(model.Lead{Name: "x", Company: "y", Source: model.SourceLinkedIn}),
		IdentityKey(model.Lead{Name: "x", Company: "y", Source: model.SourceReddit}),
		"source is not part of the key")
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))

	lead, err := Normalize(connector.Fragment{
		Name:     " Asha   Rao ",
		Headline: "Founder at Rao Textiles",
		Content:  body,
		URL:      "https://www.linkedin.com/in/asha-rao/?trk=x",
	}, model.SourceLinkedIn, at)
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", lead.Name)
	assert.Equal(t, "Founder", lead.Title)
	assert.Equal(t, "Rao Textiles", lead.Company)
	assert.Equal(t, model.SourceLinkedIn, lead.Source)
	assert.Equal(t, "https://linkedin.com/in/asha-rao", lead.OriginURL)
	assert.Equal(t, time.UTC, lead.CapturedAt.Location())
	assert.Equal(t, IdentityKey(lead), lead.IdentityKey)

	lead, err = Normalize(connector.Fragment{
		Name: "P", Headline: "Author on r/smallbusiness", Company: "Unknown (Reddit)", Content: body,
	}, model.SourceReddit, at)
	require.NoError(t, err)
	assert.Equal(t, "Unknown (Reddit)", lead.Company)

	_, err = Normalize(connector.Fragment{Name: "", Content: body}, model.SourceManual, at)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = Normalize(connector.Fragment{Name: "x", Content: "too short"}, model.SourceManual, at)
	assert.ErrorIs(t, err, ErrContentTooShort)
}
