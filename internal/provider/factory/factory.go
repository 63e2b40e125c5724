package factory

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/provider"
	"github.com/fragmentworks/fragment-gateway/internal/provider/anthropic"
	"github.com/fragmentworks/fragment-gateway/internal/provider/bedrock"
	"github.com/fragmentworks/fragment-gateway/internal/provider/google"
	"github.com/fragmentworks/fragment-gateway/internal/provider/ollama"
	"github.com/fragmentworks/fragment-gateway/internal/provider/openai"
	"github.com/fragmentworks/fragment-gateway/internal/registry"
	"github.com/fragmentworks/fragment-gateway/internal/secrets"
)

// entry declares how one provider is credentialed and constructed. Adding a
// provider means adding a row, nothing else.
type entry struct {
	credentialName string // secret name for the operator key; empty for keyless providers
	baseURL        string
	build          func(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error)
}

func buildOpenAICompatible(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error) {
	return openai.New(providerID, apiKey, baseURL, f.httpc), nil
}

var table = map[string]entry{
	registry.ProviderOpenAI: {
		credentialName: "OPENAI_API_KEY",
		baseURL:        "https://api.openai.com/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderMistral: {
		credentialName: "MISTRAL_API_KEY",
		baseURL:        "https://api.mistral.ai/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderGroq: {
		credentialName: "GROQ_API_KEY",
		baseURL:        "https://api.groq.com/openai/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderFireworks: {
		credentialName: "FIREWORKS_API_KEY",
		baseURL:        "https://api.fireworks.ai/inference/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderTogetherAI: {
		credentialName: "TOGETHER_API_KEY",
		baseURL:        "https://api.together.xyz/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderXAI: {
		credentialName: "XAI_API_KEY",
		baseURL:        "https://api.x.ai/v1",
		build:          buildOpenAICompatible,
	},
	registry.ProviderAnthropic: {
		credentialName: "ANTHROPIC_API_KEY",
		baseURL:        "https://api.anthropic.com/v1",
		build: func(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error) {
			return anthropic.New(apiKey, baseURL, f.httpc), nil
		},
	},
	registry.ProviderGoogle: {
		credentialName: "GOOGLE_AI_API_KEY",
		baseURL:        "https://generativelanguage.googleapis.com/v1beta",
		build: func(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error) {
			return google.New(apiKey, baseURL, f.httpc), nil
		},
	},
	registry.ProviderOllama: {
		baseURL: "http://localhost:11434",
		build: func(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error) {
			return ollama.New(baseURL, f.httpc), nil
		},
	},
	registry.ProviderBedrock: {
		build: func(f *Factory, providerID, apiKey, baseURL string) (provider.Client, error) {
			return bedrock.New(context.Background(), f.awsRegion)
		},
	},
}

type FactoryConfig struct {
	Credentials secrets.Store
	HTTPClient  *http.Client
	AWSRegion   string
	// BaseURLs overrides the default endpoint per provider id.
	BaseURLs map[string]string
}

type Factory struct {
	creds     secrets.Store
	httpc     *http.Client
	awsRegion string
	baseURLs  map[string]string
}

func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		creds:     cfg.Credentials,
		httpc:     cfg.HTTPClient,
		awsRegion: cfg.AWSRegion,
		baseURLs:  cfg.BaseURLs,
	}
}

// HasServerCredential reports whether the operator holds a credential for
// the provider. Keyless providers (local or ambient-credentialed backends)
// always count as credentialed.
func (f *Factory) HasServerCredential(ctx context.Context, providerID string) (bool, error) {
	e, ok := table[providerID]
	if !ok {
		return false, domain.ErrUnsupportedProvider
	}
	if e.credentialName == "" {
		return true, nil
	}

	key, err := f.creds.Get(ctx, e.credentialName)
	if err != nil {
		return false, fmt.Errorf("credential lookup for %s: %w", providerID, err)
	}
	return key != "", nil
}

// Resolve builds the client for one request. The operator-held credential is
// always preferred; a caller-supplied key is used only when no operator key
// is configured for the provider. With neither present the resolve fails
// before any network call.
func (f *Factory) Resolve(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error) {
	e, ok := table[model.ProviderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, model.ProviderID)
	}

	var apiKey string
	if e.credentialName != "" {
		operatorKey, err := f.creds.Get(ctx, e.credentialName)
		if err != nil {
			return nil, fmt.Errorf("credential lookup for %s: %w", model.ProviderID, err)
		}

		apiKey = operatorKey
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredential, model.ProviderID)
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = f.baseURLs[model.ProviderID]
	}
	if baseURL == "" {
		baseURL = e.baseURL
	}

	return e.build(f, model.ProviderID, apiKey, baseURL)
}
