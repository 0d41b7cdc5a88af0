package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/checkpoint"
	"github.com/priyam-jain-2002/vibemarket/internal/classify"
	"github.com/priyam-jain-2002/vibemarket/internal/config"
	"github.com/priyam-jain-2002/vibemarket/internal/connector"
	"github.com/priyam-jain-2002/vibemarket/internal/cost"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/outreach"
	"github.com/priyam-jain-2002/vibemarket/internal/pipeline"
	"github.com/priyam-jain-2002/vibemarket/internal/resilience"
	anthropicpkg "github.com/priyam-jain-2002/vibemarket/pkg/anthropic"
	"github.com/priyam-jain-2002/vibemarket/pkg/ollama"
	"github.com/priyam-jain-2002/vibemarket/pkg/openai"
)

// app holds everything a pipeline command opens.
type app struct {
	pipe  *pipeline.Pipeline
	store checkpoint.Store
	sink  *jsonSink
}

// Close flushes the sink, then closes the store.
func (a *app) Close() error {
	var sinkErr error
	if a.sink != nil {
		sinkErr = a.sink.Close()
	}
	storeErr := a.store.Close()
	if sinkErr != nil {
		return sinkErr
	}
	return storeErr
}

// appSpec says which source to harvest and where to write.
type appSpec struct {
	source     model.Source
	query      string
	manualPath string
	outputPath string
}

func newApp(ctx context.Context, c *config.Config, spec appSpec) (*app, error) {
	taxonomy, err := c.LoadTaxonomy()
	if err != nil {
		return nil, err
	}

	classifyModel, generateModel := c.Models()
	var free []string
	if c.Provider() == config.ProviderOllama {
		free = []string{classifyModel, generateModel}
	}
	calc := cost.NewCalculator(ratesFrom(c.Pricing, free...))
	budget := cost.NewBudget(c.Budget.CeilingUSD, 0)

	client, err := newLLMClient(c)
	if err != nil {
		return nil, err
	}

	classifier, err := classify.NewAnthropic(client, calc, taxonomy, classify.AnthropicConfig{
		Model:     classifyModel,
		MaxTokens: c.Classify.MaxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init classifier")
	}

	gen, err := newGenerator(c, client, calc, budget, taxonomy)
	if err != nil {
		return nil, err
	}

	conn, creds, err := newConnector(c, spec)
	if err != nil {
		return nil, err
	}

	st, err := checkpoint.Open(ctx, c.Checkpoint.Driver, c.Checkpoint.Dir, c.Checkpoint.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open checkpoint store")
	}

	sink, err := newJSONSink(spec.outputPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	breakerCfg := resilience.FromCircuitConfig(c.Classify.CircuitThreshold, c.Classify.CircuitResetSecs)
	breakerCfg.Name = c.Provider()

	query := spec.query
	if query == "" {
		query = c.Search.Query
	}
	pipe := pipeline.New(conn, classifier, gen, st, sink, budget, pipeline.Options{
		Query:       query,
		Limit:       c.Search.Limit,
		DedupScope:  c.Checkpoint.DedupScope,
		Credentials: creds,
		Classify: classify.Config{
			Concurrency:    c.Classify.Concurrency,
			RatePerSec:     c.Classify.RatePerSec,
			Retry:          resilience.FromRetryConfig(c.Classify.MaxAttempts, c.Classify.InitialBackoffMs, c.Classify.MaxBackoffMs, 0),
			RequestTimeout: time.Duration(c.Classify.RequestTimeoutSecs) * time.Second,
			Breaker:        resilience.NewCircuitBreaker(breakerCfg),
		},
	})

	zap.L().Debug("pipeline wired",
		zap.String("source", string(conn.Source())),
		zap.String("provider", c.Provider()),
		zap.String("classify_model", classifyModel),
		zap.Bool("outreach", gen != nil),
		zap.String("checkpoint_driver", c.Checkpoint.Driver),
	)
	return &app{pipe: pipe, store: st, sink: sink}, nil
}

// newLLMClient builds the client for llm.provider. Every provider is served
// through the same Messages-shaped client interface.
func newLLMClient(c *config.Config) (anthropicpkg.Client, error) {
	switch c.Provider() {
	case config.ProviderAnthropic:
		var opts []anthropicpkg.Option
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		return anthropicpkg.NewClient(c.Anthropic.Key, opts...), nil
	case config.ProviderOpenAI:
		client, err := openai.NewClient(openai.Config{APIKey: c.OpenAI.Key, BaseURL: c.OpenAI.BaseURL})
		if err != nil {
			return nil, eris.Wrap(err, "init llm client")
		}
		return client, nil
	case config.ProviderOllama:
		return ollama.NewClient(ollama.Config{BaseURL: c.Ollama.BaseURL, NumCtx: c.Ollama.NumCtx}), nil
	default:
		return nil, eris.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
}

func newGenerator(c *config.Config, client anthropicpkg.Client, calc *cost.Calculator, budget *cost.Budget, taxonomy model.Taxonomy) (*outreach.Generator, error) {
	if !c.Outreach.Enabled {
		return nil, nil
	}
	var (
		w   outreach.Writer
		err error
	)
	switch c.Outreach.Generator {
	case "template":
		w, err = outreach.NewTemplateWriter(nil)
	default:
		_, genModel := c.Models()
		w, err = outreach.NewLLMWriter(client, calc, budget, outreach.LLMConfig{
			Model:     genModel,
			MaxTokens: c.Outreach.MaxTokens,
			Retry:     resilience.FromRetryConfig(c.Classify.MaxAttempts, c.Classify.InitialBackoffMs, c.Classify.MaxBackoffMs, 0),
		})
	}
	if err != nil {
		return nil, eris.Wrap(err, "init outreach writer")
	}
	return outreach.New(w, taxonomy), nil
}

// newConnector builds the connector for spec.source along with the
// credentials its Login needs.
func newConnector(c *config.Config, spec appSpec) (connector.Connector, connector.Credentials, error) {
	session := connector.SessionConfig{
		UserAgent: c.Connector.UserAgent,
		Timeout:   time.Duration(c.Connector.TimeoutSecs) * time.Second,
		Pacer:     connector.NewRandomPacer(c.Connector.PacingMinMs, c.Connector.PacingMaxMs),
		Retry:     resilience.FromRetryConfig(c.Connector.MaxAttempts, c.Connector.InitialBackoffMs, c.Connector.MaxBackoffMs, 0),
	}

	switch spec.source {
	case model.SourceLinkedIn:
		conn, err := connector.NewLinkedIn(connector.LinkedInConfig{
			BaseURL:  c.LinkedIn.BaseURL,
			MaxPages: c.Connector.MaxPages,
			Session:  session,
		})
		if err != nil {
			return nil, connector.Credentials{}, err
		}
		if c.LinkedIn.Email == "" {
			return nil, connector.Credentials{}, eris.Wrap(connector.ErrAuthentication, "linkedin.email is required")
		}
		account := connector.KeyringAccount(string(model.SourceLinkedIn), c.LinkedIn.Email)
		pw, err := connector.ResolvePassword(account, c.LinkedIn.Password)
		if err != nil {
			return nil, connector.Credentials{}, err
		}
		return conn, connector.Credentials{Username: c.LinkedIn.Email, Password: pw}, nil

	case model.SourceReddit:
		conn, err := connector.NewReddit(connector.RedditConfig{
			BaseURL:  c.Reddit.BaseURL,
			Sort:     c.Reddit.Sort,
			MaxPages: c.Connector.MaxPages,
			Session:  session,
		})
		return conn, connector.Credentials{}, err

	case model.SourceManual:
		if spec.manualPath == "" {
			return nil, connector.Credentials{}, eris.New("manual source needs a lead file")
		}
		frags, err := connector.LoadManual(spec.manualPath)
		if err != nil {
			return nil, connector.Credentials{}, err
		}
		return connector.NewStatic(frags), connector.Credentials{}, nil

	default:
		return nil, connector.Credentials{}, eris.Errorf("unknown source %q", spec.source)
	}
}

// ratesFrom converts pricing overrides. Models in free that have no Ollama
// price are added at zero so local runs pass the priced-model check.
func ratesFrom(p config.PricingConfig, free ...string) cost.Rates {
	rates := cost.Rates{
		Anthropic: pricingGroup(p.Anthropic),
		OpenAI:    pricingGroup(p.OpenAI),
		Ollama:    pricingGroup(p.Ollama),
	}
	for _, m := range free {
		if _, ok := rates.Ollama[m]; !ok && m != "" {
			rates.Ollama[m] = cost.ModelRate{}
		}
	}
	return rates
}

func pricingGroup(in map[string]config.ModelPricing) map[string]cost.ModelRate {
	out := make(map[string]cost.ModelRate, len(in))
	for name, m := range in {
		out[name] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return out
}

// printSummary writes the run report and passes err through.
func printSummary(s *model.Summary, err error) error {
	if s != nil {
		_, _ = stdout.Write([]byte(pipeline.FormatSummary(s)))
	}
	return err
}
