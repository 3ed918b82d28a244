package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// ValidLLMProviderTypes lists known LLM provider type names. Used by
// [Validate] to warn about unrecognised provider types.
var ValidLLMProviderTypes = []string{"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq"}

// ValidEmbeddingProviders lists known embedding provider names.
var ValidEmbeddingProviders = []string{"openai", "ollama"}

// Load reads the JSON configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a strict JSON config from r (unknown fields are
// rejected, matching §4.10's strict-mode verb validation) and applies
// defaults and validation. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode json: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued tunables with the defaults named throughout
// the spec (§4.2–§4.6, §5).
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 30 * time.Minute
	}
	if cfg.Session.VerbTimeout == 0 {
		cfg.Session.VerbTimeout = 30 * time.Second
	}
	if cfg.Session.QueueDepth == 0 {
		cfg.Session.QueueDepth = 64
	}
	if cfg.Session.RecentCacheSize == 0 {
		cfg.Session.RecentCacheSize = 50
	}
	if cfg.Interaction.EmbeddingDimension == 0 {
		cfg.Interaction.EmbeddingDimension = 1536
	}
	if cfg.Interaction.ShortTermCapacityPerSession == 0 {
		cfg.Interaction.ShortTermCapacityPerSession = 200
	}
	if cfg.Decay.Alpha == 0 {
		cfg.Decay.Alpha = 0.3
	}
	if cfg.Decay.AgeFactor == 0 {
		cfg.Decay.AgeFactor = 0.98
	}
	if cfg.Decay.PromoteBelow == 0 {
		cfg.Decay.PromoteBelow = 0.2
	}
	if cfg.Decay.TickInterval == 0 {
		cfg.Decay.TickInterval = 60 * time.Second
	}
	if cfg.Retriever.CoarsePreFilterLimit == 0 {
		cfg.Retriever.CoarsePreFilterLimit = 200
	}
	if cfg.Retriever.HypothesisWeight == 0 {
		cfg.Retriever.HypothesisWeight = 0.3
	}
	if len(cfg.Retriever.SystemPrefixes) == 0 {
		cfg.Retriever.SystemPrefixes = []string{"ZPT State Change:", "System:"}
	}
	if cfg.Retriever.TiltWeights == nil {
		cfg.Retriever.TiltWeights = DefaultTiltWeights()
	}
}

// DefaultTiltWeights returns the default (w_e, w_c, w_r, w_a) weight vector
// per tilt token (§4.6 step 3, §9 open question b — treated as configuration,
// not fixed by the spec).
func DefaultTiltWeights() map[string]Weights {
	return map[string]Weights{
		"embedding": {Embedding: 0.7, Concept: 0.15, Recency: 0.1, Access: 0.05},
		"keywords":  {Embedding: 0.2, Concept: 0.6, Recency: 0.1, Access: 0.1},
		"graph":     {Embedding: 0.0, Concept: 0.2, Recency: 0.1, Access: 0.1},
		"temporal":  {Embedding: 0.2, Concept: 0.2, Recency: 0.5, Access: 0.1},
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listenAddr is required"))
	}

	if len(cfg.LLMProviders) == 0 {
		slog.Warn("no llmProviders configured; generate/extractConcepts/generateHypothesis will fail at call time")
	}
	for i, p := range cfg.LLMProviders {
		prefix := fmt.Sprintf("llmProviders[%d]", i)
		if p.Type == "" {
			errs = append(errs, fmt.Errorf("%s.type is required", prefix))
		} else if !contains(ValidLLMProviderTypes, p.Type) {
			slog.Warn("unknown llm provider type — may be a typo or third-party provider", "type", p.Type)
		}
	}

	if cfg.EmbeddingProvider != "" && !contains(ValidEmbeddingProviders, cfg.EmbeddingProvider) {
		slog.Warn("unknown embeddingProvider — may be a typo or third-party provider", "name", cfg.EmbeddingProvider)
	}

	if len(cfg.SPARQLEndpoints) == 0 {
		errs = append(errs, errors.New("at least one sparqlEndpoints entry is required"))
	}
	for i, e := range cfg.SPARQLEndpoints {
		prefix := fmt.Sprintf("sparqlEndpoints[%d]", i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if e.QueryURL == "" {
			errs = append(errs, fmt.Errorf("%s.queryUrl is required", prefix))
		}
		if e.UpdateURL == "" {
			errs = append(errs, fmt.Errorf("%s.updateUrl is required", prefix))
		}
	}

	for tilt, w := range cfg.Retriever.TiltWeights {
		if w.Embedding < 0 || w.Concept < 0 || w.Recency < 0 || w.Access < 0 {
			errs = append(errs, fmt.Errorf("retriever.tiltWeights[%q] has a negative weight", tilt))
		}
	}

	if cfg.Retriever.HypothesisWeight < 0 || cfg.Retriever.HypothesisWeight > 1 {
		errs = append(errs, fmt.Errorf("retriever.hypothesisWeight %.2f out of range [0,1]", cfg.Retriever.HypothesisWeight))
	}

	return errors.Join(errs...)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
