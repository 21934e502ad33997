// Package models provides the immutable catalog of model configurations
// under test.
package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ModelConfig describes one MoE model configuration
type ModelConfig struct {
	Name                string  `json:"name" validate:"required"`
	DisplayName         string  `json:"display_name" validate:"required"`
	WeightsPath         string  `json:"weights_path" validate:"required"`
	ExpertsTotal        int     `json:"experts_total" validate:"gt=0"`
	ExpertsActive       int     `json:"experts_active" validate:"gt=0,ltefield=ExpertsTotal"`
	ContextLength       int     `json:"context_length" validate:"gt=0"`
	ExpectedGPUMemoryMB float64 `json:"expected_gpu_memory_mb" validate:"gte=0"`
}

// Registry holds model configurations in a stable order
type Registry struct {
	byName map[string]ModelConfig
	order  []string
}

var validate = validator.New()

// NewRegistry builds a registry from the given configurations.
// Entries are validated; duplicate names are rejected.
func NewRegistry(configs []ModelConfig) (*Registry, error) {
	r := &Registry{byName: make(map[string]ModelConfig, len(configs))}

	for _, cfg := range configs {
		if err := validate.Struct(cfg); err != nil {
			return nil, fmt.Errorf("invalid model config %q: %w", cfg.Name, err)
		}
		if _, ok := r.byName[cfg.Name]; ok {
			return nil, fmt.Errorf("duplicate model name %q", cfg.Name)
		}
		r.byName[cfg.Name] = cfg
		r.order = append(r.order, cfg.Name)
	}

	return r, nil
}

// Default returns the registry of stock MoE model configurations
func Default() *Registry {
	r, err := NewRegistry([]ModelConfig{
		{
			Name:                "gpt-oss-20b-f16",
			DisplayName:         "GPT-OSS 20B MoE",
			WeightsPath:         "/home/ubuntu/models/gpt-oss-20b-gguf/gpt-oss-20b-f16.gguf",
			ExpertsTotal:        32,
			ExpertsActive:       4,
			ContextLength:       131072,
			ExpectedGPUMemoryMB: 2000,
		},
		{
			Name:                "phi-3.5-moe-instruct-f16",
			DisplayName:         "Phi-3.5-MoE 41.9B",
			WeightsPath:         "/home/ubuntu/models/phi-3.5-moe-gguf/phi-3.5-moe-instruct-f16.gguf",
			ExpertsTotal:        16,
			ExpertsActive:       2,
			ContextLength:       128000,
			ExpectedGPUMemoryMB: 1500,
		},
		{
			Name:                "deepseek-moe-16b-f16",
			DisplayName:         "DeepSeek MoE 16B",
			WeightsPath:         "/home/ubuntu/models/deepseek-moe-16b-gguf/deepseek-moe-16b-f16.gguf",
			ExpertsTotal:        64,
			ExpertsActive:       6,
			ContextLength:       4096,
			ExpectedGPUMemoryMB: 1000,
		},
	})
	if err != nil {
		// The stock catalog is compiled in; a validation failure is a bug.
		panic(err)
	}
	return r
}

// Get returns a model by name
func (r *Registry) Get(name string) (ModelConfig, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns model names in registry order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns all models in registry order
func (r *Registry) All() []ModelConfig {
	out := make([]ModelConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered models
func (r *Registry) Len() int {
	return len(r.order)
}

// Select returns a registry restricted to the named models, preserving
// registry order. Unknown names are an error.
func (r *Registry) Select(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.byName[name]; !ok {
			return nil, fmt.Errorf("unknown model %q", name)
		}
		wanted[name] = true
	}

	sub := &Registry{byName: make(map[string]ModelConfig, len(names))}
	for _, name := range r.order {
		if wanted[name] {
			sub.byName[name] = r.byName[name]
			sub.order = append(sub.order, name)
		}
	}
	return sub, nil
}
