// Package config provides the configuration schema, loader, and provider
// registry for the semantic memory core.
package config

import "time"

// Config is the root configuration structure, loaded from a JSON document
// (see [Load]) per the external `config.json` interface.
type Config struct {
	Server             ServerConfig       `json:"server"`
	LLMProviders       []LLMProvider      `json:"llmProviders"`
	EmbeddingProvider  string             `json:"embeddingProvider"`
	EmbeddingModel     string             `json:"embeddingModel"`
	EmbeddingBaseURL   string             `json:"embeddingBaseUrl"`
	EmbeddingAPIKey    string             `json:"embeddingApiKey"`
	SPARQLEndpoints    []SPARQLEndpoint   `json:"sparqlEndpoints"`
	Servers            ServersConfig      `json:"servers"`
	Session            SessionConfig      `json:"session"`
	Retriever          RetrieverConfig    `json:"retriever"`
	Decay              DecayConfig        `json:"decay"`
	Interaction        InteractionConfig  `json:"interaction"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `json:"listenAddr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `json:"logLevel"`
}

// LLMProvider describes one configured chat-model backend (§6).
type LLMProvider struct {
	// Type selects the registered provider implementation (e.g., "openai", "anthropic", "ollama").
	Type string `json:"type"`

	// ChatModel is the model identifier to request from this provider.
	ChatModel string `json:"chatModel"`

	// BaseURL overrides the provider's default API endpoint. Empty uses the built-in default.
	BaseURL string `json:"baseUrl"`

	// APIKey authenticates requests to this provider.
	APIKey string `json:"apiKey"`

	// Capabilities lists free-form capability tags (e.g., "tool_calling",
	// "vision"). They are accepted but not read: provider wiring does not
	// consult them.
	Capabilities []string `json:"capabilities"`
}

// SPARQLEndpoint describes one configured SPARQL 1.1 triple store endpoint.
type SPARQLEndpoint struct {
	// Name identifies this endpoint; it must be non-empty.
	Name string `json:"name"`

	// QueryURL is the SPARQL query endpoint URL.
	QueryURL string `json:"queryUrl"`

	// UpdateURL is the SPARQL update endpoint URL. May equal QueryURL.
	UpdateURL string `json:"updateUrl"`

	// GraphNavigation/GraphCorpus/GraphRagno name the default graphs used for
	// ZPT metadata, corpus content, and derived ragno entities respectively (§6).
	GraphNavigation string `json:"graphNavigation"`
	GraphCorpus     string `json:"graphCorpus"`
	GraphRagno      string `json:"graphRagno"`

	// Username/Password hold optional basic-auth credentials.
	Username string `json:"username"`
	Password string `json:"password"`
}

// ServersConfig holds transport listener settings.
type ServersConfig struct {
	MCP MCPConfig `json:"mcp"`
}

// MCPConfig configures the `/mcp` bidirectional session endpoint.
type MCPConfig struct {
	// Port is accepted but not read: the MCP endpoint is always served at
	// /mcp on the same listener as the HTTP API, whatever its value.
	Port int `json:"port"`
}

// SessionConfig holds per-session lifecycle settings (§4.12, §5).
type SessionConfig struct {
	// IdleTimeout evicts a session after this long without activity.
	IdleTimeout time.Duration `json:"idleTimeout"`

	// QueueDepth bounds the per-session verb queue (§5); overflow returns Busy.
	QueueDepth int `json:"queueDepth"`

	// VerbTimeout is the system-wide default per-verb timeout (§5), 30s if zero.
	VerbTimeout time.Duration `json:"verbTimeout"`

	// RecentCacheSize bounds the session registry's recent-interaction cache.
	RecentCacheSize int `json:"recentCacheSize"`
}

// RetrieverConfig holds the hybrid retriever's tunables (§4.6, §9 open question b).
type RetrieverConfig struct {
	// TiltWeights maps each tilt token to its (w_e, w_c, w_r, w_a) weight vector.
	TiltWeights map[string]Weights `json:"tiltWeights"`

	// SystemPrefixes lists prompt prefixes that mark infrastructure content to
	// be filtered from retrieval results (§4.6 step 5).
	SystemPrefixes []string `json:"systemPrefixes"`

	// HypothesisWeight caps the contribution of HyDE-derived candidates (§4.8).
	HypothesisWeight float64 `json:"hypothesisWeight"`

	// CoarsePreFilterLimit bounds how many long-term candidates are fetched by
	// cosine pre-filter before scoring (§4.6 step 2b).
	CoarsePreFilterLimit int `json:"coarsePreFilterLimit"`
}

// Weights is one tilt's score weight vector (§4.6 step 3).
type Weights struct {
	Embedding float64 `json:"embedding"`
	Concept   float64 `json:"concept"`
	Recency   float64 `json:"recency"`
	Access    float64 `json:"access"`
}

// DecayConfig holds short-term interaction decay tunables (§4.5, §9 open question a).
type DecayConfig struct {
	// Alpha is the access-bump factor: decayFactor += alpha*(1-decayFactor) on touch.
	Alpha float64 `json:"alpha"`

	// AgeFactor multiplicatively ages short-term decayFactor on each tick.
	AgeFactor float64 `json:"ageFactor"`

	// PromoteBelow is the decayFactor threshold below which a short-term item
	// is promoted to the long-term tier and evicted from short-term.
	PromoteBelow float64 `json:"promoteBelow"`

	// TickInterval is how often decayPass runs; 60s if zero.
	TickInterval time.Duration `json:"tickInterval"`
}

// InteractionConfig bounds the in-memory short-term tier (§4.5).
type InteractionConfig struct {
	// ShortTermCapacityPerSession bounds the FIFO deque size per session.
	ShortTermCapacityPerSession int `json:"shortTermCapacityPerSession"`

	// EmbeddingDimension is the configured embedding dimension D (§3).
	EmbeddingDimension int `json:"embeddingDimension"`
}
