package outreach

import (
	"bytes"
	"context"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// TemplateWriter renders fixed per-vibe templates. It needs no network and
// always quotes the first pain point.
type TemplateWriter struct {
	templates map[model.VibeProfile]*template.Template
}

var defaultTemplates = map[model.VibeProfile]string{
	model.VibeUrgent: `Hi {{.FirstName}},

Your post about "{{.Pain}}" stood out. That kind of problem gets expensive fast, so I will keep this short.

{{if .Company}}We have helped teams like {{.Company}} get this under control within a few weeks. {{end}}{{if .Seller}}{{.Seller}} was built for exactly this.{{end}}

If it would help, I can share the exact steps that worked.`,

	model.VibeExploring: `Hi {{.FirstName}},

Saw you are looking into options for "{{.Pain}}". A few teams in a similar spot tried different approaches, and there are clear tradeoffs between them.

Happy to share what worked (and what did not) if that is useful. No pitch, just notes.`,

	model.VibeCasual: `Hey {{.FirstName}},

Your post about "{{.Pain}}" hit home. We see that a lot{{if .Company}} at places like {{.Company}}{{end}}.

Happy to share what worked for others if you want.`,

	model.VibeFormal: `Dear {{.FirstName}},

I read your note regarding "{{.Pain}}". Several organizations{{if .Company}} comparable to {{.Company}}{{end}} faced the same challenge and resolved it with a structured approach.

I would be glad to share the approach if it is of interest.

Best regards{{if .Seller}},
{{.Seller}}{{end}}`,
}

// NewTemplateWriter parses the built-in templates, replaced by overrides
// where given.
func NewTemplateWriter(overrides map[model.VibeProfile]string) (*TemplateWriter, error) {
	w := &TemplateWriter{templates: make(map[model.VibeProfile]*template.Template)}
	for vibe, text := range defaultTemplates {
		if o, ok := overrides[vibe]; ok && strings.TrimSpace(o) != "" {
			text = o
		}
		tmpl, err := template.New(string(vibe)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, eris.Wrapf(err, "outreach: parse %s template", vibe)
		}
		w.templates[vibe] = tmpl
	}
	return w, nil
}

func (w *TemplateWriter) Name() string { return "template" }

type templateData struct {
	FirstName string
	Company   string
	Pain      string
	Seller    string
}

func (w *TemplateWriter) Write(_ context.Context, b Brief) (string, error) {
	tmpl, ok := w.templates[b.Vibe]
	if !ok {
		tmpl = w.templates[model.VibeFormal]
	}
	if len(b.Analysis.PainPoints) == 0 {
		return "", ErrNoPainPoints
	}

	data := templateData{
		FirstName: firstName(b.Lead.Name),
		Pain:      b.Analysis.PainPoints[0],
		Seller:    strings.TrimSpace(b.Taxonomy.Company.Name),
	}
	if c := strings.TrimSpace(b.Lead.Company); c != "" && !strings.HasPrefix(c, "Unknown") {
		data.Company = c
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "outreach: render %s template", b.Vibe)
	}
	out := buf.String()
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out, nil
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return "there"
}
