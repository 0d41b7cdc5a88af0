package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	"github.com/priyam-jain-2002/vibemarket/internal/scoring"
	"github.com/priyam-jain-2002/vibemarket/pkg/anthropic"
)

// AnthropicConfig configures the Claude-backed classifier.
type AnthropicConfig struct {
	Model     string
	MaxTokens int
}

// AnthropicClassifier assesses leads with Claude. The taxonomy goes into a
// cached system prompt shared by every request of the run.
type AnthropicClassifier struct {
	client    anthropic.Client
	calc      *cost.Calculator
	model     string
	maxTokens int
	system    []anthropic.SystemBlock
}

// NewAnthropic builds a classifier for taxonomy. The model must be priced by
// calc so budget reservations are meaningful.
func NewAnthropic(client anthropic.Client, calc *cost.Calculator, taxonomy model.Taxonomy, cfg AnthropicConfig) (*AnthropicClassifier, error) {
	if !calc.Known(cfg.Model) {
		return nil, eris.Errorf("classify: no pricing for model %q", cfg.Model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicClassifier{
		client:    client,
		calc:      calc,
		model:     cfg.Model,
		maxTokens: maxTokens,
		system:    anthropic.CachedSystem(SystemPrompt(taxonomy)),
	}, nil
}

func (c *AnthropicClassifier) request(lead model.Lead) anthropic.MessageRequest {
	temp := 0.0
	return anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   int64(c.maxTokens),
		System:      c.system,
		Messages:    []anthropic.Message{{Role: "user", Content: LeadPrompt(lead)}},
		Temperature: &temp,
	}
}

// Estimate returns the worst-case cost of classifying lead.
func (c *AnthropicClassifier) Estimate(lead model.Lead) float64 {
	return c.calc.WorstCase(c.model, c.request(lead).InputSize(), c.maxTokens)
}

// Classify sends one request. A malformed reply still returns a Result so its
// cost can be committed.
func (c *AnthropicClassifier) Classify(ctx context.Context, lead model.Lead) (*Result, error) {
	resp, err := c.client.CreateMessage(ctx, c.request(lead))
	if err != nil {
		return nil, apiError(err)
	}

	u := resp.Usage
	spent := c.calc.Usage(c.model, int(u.InputTokens), int(u.OutputTokens), int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens))
	u.LogUsage(c.model, "classify", spent)
	res := &Result{CostUSD: spent}

	if resp.StopReason == "max_tokens" {
		return res, NewError(KindMalformed, eris.New("reply truncated at max_tokens"))
	}
	a, err := ParseAssessment(resp.Text())
	if err != nil {
		return res, err
	}
	res.Assessment = a
	return res, nil
}

// apiError maps an API failure onto an error kind.
func apiError(err error) error {
	code := anthropic.StatusCode(err)
	switch {
	case code == http.StatusTooManyRequests:
		te := resilience.NewTransientError(err, code)
		te.RetryAfter = anthropic.RetryAfter(err)
		return NewError(KindRateLimited, te)
	case resilience.IsTransientHTTPStatus(code):
		return NewError(KindTransient, resilience.NewTransientError(err, code))
	case code == 0:
		// No response at all: network failure or timeout.
		return NewError(KindTransient, resilience.NewTransientError(err, 0))
	default:
		return NewError(KindPermanent, err)
	}
}

// ParseAssessment decodes the service reply, tolerating code fences and prose
// around the JSON object.
func ParseAssessment(text string) (scoring.Assessment, error) {
	var a scoring.Assessment
	raw, ok := ExtractJSON(text)
	if !ok {
		return a, NewError(KindMalformed, eris.New("no JSON object in reply"))
	}
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return a, NewError(KindMalformed, eris.Wrap(err, "decode assessment"))
	}
	if strings.TrimSpace(a.Urgency) == "" && strings.TrimSpace(a.Authority) == "" && strings.TrimSpace(a.PainClarity) == "" {
		return a, NewError(KindMalformed, eris.New("assessment has no signal fields"))
	}
	return a, nil
}

// ExtractJSON returns the first balanced JSON object in text. Fenced blocks
// are preferred over bare braces.
func ExtractJSON(text string) (string, bool) {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		if i := strings.Index(text, fence); i >= 0 {
			rest := text[i+len(fence):]
			if j := strings.Index(rest, "```"); j >= 0 {
				if obj, ok := balancedObject(strings.TrimSpace(rest[:j])); ok {
					return obj, true
				}
			}
		}
	}
	return balancedObject(text)
}

// balancedObject scans from the first '{' to its matching '}', skipping
// braces inside strings.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

const systemPreamble = `You are an expert lead qualification analyst for B2B sales. Judge every lead with extreme rigor: quality over quantity, and when in doubt, score lower.`

// SystemPrompt renders the taxonomy context shared by every request.
func SystemPrompt(t model.Taxonomy) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nCOMPANY CONTEXT:\n")
	fmt.Fprintf(&b, "Product: %s - %s\n", orUnknown(t.Company.Name), orUnknown(t.Company.Product))
	fmt.Fprintf(&b, "What we solve: %s\n", join(t.Company.ValuePropositions))

	b.WriteString("\nTARGET AUDIENCE:\n")
	fmt.Fprintf(&b, "- Industries: %s\n", join(t.Audience.Industries))
	fmt.Fprintf(&b, "- Titles: %s\n", join(t.Audience.Titles))
	fmt.Fprintf(&b, "- Location: %s\n", join(t.Audience.Locations))
	if t.Audience.CompanySize != "" {
		fmt.Fprintf(&b, "- Company size: %s\n", t.Audience.CompanySize)
	}

	if len(t.PainSignals) > 0 {
		b.WriteString("\nPAIN SIGNALS WE LOOK FOR:\n")
		for _, p := range t.PainSignals {
			fmt.Fprintf(&b, "- %s\n", p.Name)
			for _, ex := range p.Examples[:min(2, len(p.Examples))] {
				fmt.Fprintf(&b, "  e.g. %q\n", ex)
			}
		}
	}

	b.WriteString(assessmentRubric)
	return b.String()
}

const assessmentRubric = `
HOW TO ASSESS:
1. Pain points: which operational challenges does the lead mention? Rate pain clarity EXPLICIT (said directly), IMPLICIT (suggested) or NONE.
2. Urgency: HIGH for "urgent", "crisis", "losing money" or specific losses; MEDIUM for "struggling", "need help", "looking for a solution"; LOW for "exploring", "considering"; NONE without indicators.
3. Authority: DECISION_MAKER (owner, founder, director, C-level), INFLUENCER (manager, head, team lead), UNKNOWN (title unclear), LOW (junior, assistant, student).
4. Specificity 1-10: 10 for numbers and concrete examples, 5 for a general problem statement, 1 for vague text.
5. Industry and size fit against the target audience.
6. Disqualify spam, promotion, students, researchers, wrong industries and non-problems.

OUTPUT: reply with ONLY a JSON object with these fields:
score ("A+", "A", "B" or "C"), pain_points (array of strings), pain_clarity, urgency, authority, specificity_score (integer 1-10), industry_fit (bool), size_fit (bool), disqualify (bool), disqualify_reason (string, empty if not disqualified), reasoning (2-3 sentences), key_signals (array of strings), missing_signals (array of strings).`

// LeadPrompt renders the per-lead part of the request.
func LeadPrompt(l model.Lead) string {
	var b strings.Builder
	b.WriteString("LEAD TO ANALYZE:\n")
	fmt.Fprintf(&b, "Name: %s\n", orUnknown(l.Name))
	fmt.Fprintf(&b, "Title: %s\n", orUnknown(l.Title))
	fmt.Fprintf(&b, "Company: %s\n", orUnknown(l.Company))
	fmt.Fprintf(&b, "Source: %s\n", orUnknown(string(l.Source)))
	if !l.CapturedAt.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", l.CapturedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "\nWhat they said:\n\"\"\"%s\"\"\"\n", l.RawContent)
	return b.String()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Unknown"
	}
	return s
}

func join(items []string) string {
	if len(items) == 0 {
		return "any"
	}
	return strings.Join(items, ", ")
}
