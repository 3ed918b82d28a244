package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/semem-go/semem/pkg/provider/embeddings"
	"github.com/semem-go/semem/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for the LLM
// (C3) and embeddings (C2) provider slots. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(LLMProvider) (llm.Provider, error)
	embeddings map[string]func(provider, model, apiKey, baseURL string) (embeddings.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(LLMProvider) (llm.Provider, error)),
		embeddings: make(map[string]func(provider, model, apiKey, baseURL string) (embeddings.Provider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under type name `typ`.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(typ string, factory func(LLMProvider) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[typ] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(provider, model, apiKey, baseURL string) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Type.
func (r *Registry) CreateLLM(entry LLMProvider) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Type)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory
// registered under name.
func (r *Registry) CreateEmbeddings(name, model, apiKey, baseURL string) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, name)
	}
	return factory(name, model, apiKey, baseURL)
}
