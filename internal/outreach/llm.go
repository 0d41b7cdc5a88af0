package outreach

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	"github.com/priyam-jain-2002/vibemarket/pkg/anthropic"
)

// LLMConfig configures the Claude-backed writer.
type LLMConfig struct {
	Model     string
	MaxTokens int
	Retry     resilience.RetryConfig
}

// LLMWriter drafts messages with Claude, spending from the run budget.
type LLMWriter struct {
	client anthropic.Client
	calc   *cost.Calculator
	budget *cost.Budget
	cfg    LLMConfig
}

// NewLLMWriter creates an LLMWriter. budget is the run budget shared with
// classification.
func NewLLMWriter(client anthropic.Client, calc *cost.Calculator, budget *cost.Budget, cfg LLMConfig) (*LLMWriter, error) {
	if !calc.Known(cfg.Model) {
		return nil, eris.Errorf("outreach: no pricing for model %q", cfg.Model)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if budget == nil {
		budget = cost.NewBudget(0, 0)
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "generate")
	}
	return &LLMWriter{client: client, calc: calc, budget: budget, cfg: cfg}, nil
}

func (w *LLMWriter) Name() string { return "llm" }

const writerSystem = "You are an expert at writing personalized, vibe-matched B2B outreach messages that feel authentic and helpful, not salesy."

func (w *LLMWriter) Write(ctx context.Context, b Brief) (string, error) {
	req := anthropic.MessageRequest{
		Model:     w.cfg.Model,
		MaxTokens: int64(w.cfg.MaxTokens),
		System:    anthropic.CachedSystem(writerSystem),
		Messages:  []anthropic.Message{{Role: "user", Content: MessagePrompt(b)}},
	}

	resp, err := resilience.DoVal(ctx, w.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		hold, err := w.budget.Reserve(ctx, w.calc.WorstCase(w.cfg.Model, req.InputSize(), w.cfg.MaxTokens))
		if err != nil {
			return nil, err
		}
		resp, err := w.client.CreateMessage(ctx, req)
		if err != nil {
			hold.Release()
			if code := anthropic.StatusCode(err); code == 0 || resilience.IsTransientHTTPStatus(code) {
				te := resilience.NewTransientError(err, code)
				te.RetryAfter = anthropic.RetryAfter(err)
				return nil, te
			}
			return nil, err
		}
		u := resp.Usage
		spent := hold.Commit(w.calc.Usage(w.cfg.Model, int(u.InputTokens), int(u.OutputTokens), int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens)))
		u.LogUsage(w.cfg.Model, "generate", spent)
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	return StripPreamble(resp.Text()), nil
}

var preambles = []string{
	"here is the personalized outreach message:",
	"here is a personalized outreach message:",
	"here's the personalized outreach message:",
	"here's a personalized outreach message:",
	"here is the outreach message:",
	"here's the outreach message:",
	"here is the message:",
	"here's the message:",
	"sure, here is",
	"sure! here is",
	"sure, here's",
	"sure! here's",
}

// StripPreamble drops a leading "here is the message:" style line and any
// quotes wrapped around the whole draft.
func StripPreamble(text string) string {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	for _, p := range preambles {
		if strings.HasPrefix(lower, p) {
			text = strings.TrimSpace(text[len(p):])
			// "Sure, here is the draft:" leaves the rest of its line behind.
			if first, rest, ok := strings.Cut(text, "\n"); ok && strings.HasSuffix(strings.TrimSpace(first), ":") {
				text = strings.TrimSpace(rest)
			}
			break
		}
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

var vibeGuidance = map[model.VibeProfile]string{
	model.VibeUrgent:    "They sound frustrated or urgent: acknowledge the pain and be direct.",
	model.VibeExploring: "They are exploring options: be helpful and offer a couple of approaches.",
	model.VibeCasual:    "They write casually: keep it short and conversational.",
	model.VibeFormal:    "They write formally: stay professional and precise.",
}

// MessagePrompt renders the generation request for b.
func MessagePrompt(b Brief) string {
	t := b.Taxonomy
	var sb strings.Builder
	sb.WriteString("COMPANY CONTEXT:\n")
	fmt.Fprintf(&sb, "Product: %s - %s\n", fallback(t.Company.Name), fallback(t.Company.Product))
	if t.Style.Tone != "" {
		fmt.Fprintf(&sb, "Communication style: %s\n", t.Style.Tone)
	}
	if t.Style.Language != "" {
		fmt.Fprintf(&sb, "Language: %s\n", t.Style.Language)
	}
	if len(t.Style.Avoid) > 0 {
		fmt.Fprintf(&sb, "AVOID: %s\n", strings.Join(t.Style.Avoid, ", "))
	}
	if len(t.Style.Prefer) > 0 {
		fmt.Fprintf(&sb, "PREFER: %s\n", strings.Join(t.Style.Prefer, ", "))
	}

	l, a := b.Lead, b.Analysis
	sb.WriteString("\nLEAD CONTEXT:\n")
	fmt.Fprintf(&sb, "Name: %s\nTitle: %s\nCompany: %s\n", fallback(l.Name), fallback(l.Title), fallback(l.Company))
	fmt.Fprintf(&sb, "\nWhat they said:\n\"\"\"%s\"\"\"\n", l.RawContent)

	sb.WriteString("\nANALYSIS:\n")
	fmt.Fprintf(&sb, "Pain points: %s\n", strings.Join(a.PainPoints, ", "))
	fmt.Fprintf(&sb, "Urgency: %s\nAuthority: %s\n", a.Urgency, a.Authority)
	if len(a.KeySignals) > 0 {
		fmt.Fprintf(&sb, "Key signals: %s\n", strings.Join(a.KeySignals, ", "))
	}

	examples := t.ExamplesFor(a.PainPoints, 2)
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "\n%s examples:\n", name)
		for _, ex := range examples[name] {
			fmt.Fprintf(&sb, "- %s\n", ex)
		}
	}

	fmt.Fprintf(&sb, "\nVIBE: %s. %s\n", b.Vibe, vibeGuidance[b.Vibe])
	sb.WriteString(`
Write a personalized outreach message that:
- references their specific situation and at least one of the pain points above, quoting or paraphrasing what they said
- positions value without selling: share how similar companies solved this, offer the playbook rather than a demo
- stays under 150 words in 2-3 short paragraphs of natural language
- ends with a low-pressure next step such as "happy to share what worked"

Return ONLY the message text. It should read like a peer who genuinely wants to help.`)
	return sb.String()
}

func fallback(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}
