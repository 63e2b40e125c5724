package registry

import "github.com/fragmentworks/fragment-gateway/internal/domain"

// Provider identifiers. The factory rejects anything outside this set.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderMistral    = "mistral"
	ProviderGroq       = "groq"
	ProviderFireworks  = "fireworks"
	ProviderTogetherAI = "togetherai"
	ProviderXAI        = "xai"
	ProviderOllama     = "ollama"
	ProviderBedrock    = "bedrock"
)

var models = []domain.ModelDescriptor{
	{ID: "gpt-4o", ProviderID: ProviderOpenAI, Name: "GPT-4o"},
	{ID: "gpt-4o-mini", ProviderID: ProviderOpenAI, Name: "GPT-4o mini"},
	{ID: "gpt-4-turbo", ProviderID: ProviderOpenAI, Name: "GPT-4 Turbo"},
	{ID: "o1-mini", ProviderID: ProviderOpenAI, Name: "o1 mini"},
	{ID: "claude-3-5-sonnet-latest", ProviderID: ProviderAnthropic, Name: "Claude 3.5 Sonnet"},
	{ID: "claude-3-5-haiku-latest", ProviderID: ProviderAnthropic, Name: "Claude 3.5 Haiku"},
	{ID: "gemini-1.5-pro", ProviderID: ProviderGoogle, Name: "Gemini 1.5 Pro"},
	{ID: "gemini-1.5-flash", ProviderID: ProviderGoogle, Name: "Gemini 1.5 Flash"},
	{ID: "mistral-large-latest", ProviderID: ProviderMistral, Name: "Mistral Large"},
	{ID: "codestral-latest", ProviderID: ProviderMistral, Name: "Codestral"},
	{ID: "llama-3.3-70b-versatile", ProviderID: ProviderGroq, Name: "Llama 3.3 70B"},
	{ID: "accounts/fireworks/models/llama-v3p1-405b-instruct", ProviderID: ProviderFireworks, Name: "Llama 3.1 405B"},
	{ID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", ProviderID: ProviderTogetherAI, Name: "Llama 3.3 70B Turbo"},
	{ID: "grok-beta", ProviderID: ProviderXAI, Name: "Grok Beta"},
	{ID: "llama3.1", ProviderID: ProviderOllama, Name: "Llama 3.1 (local)"},
	{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", ProviderID: ProviderBedrock, Name: "Claude 3.5 Sonnet (Bedrock)"},
}

// Models returns the catalog with hidden providers filtered out. The hidden
// set is a deployment feature flag, not an access control: direct requests
// for hidden providers still work.
func Models(hiddenProviders []string) []domain.ModelDescriptor {
	hidden := make(map[string]bool, len(hiddenProviders))
	for _, p := range hiddenProviders {
		hidden[p] = true
	}

	out := make([]domain.ModelDescriptor, 0, len(models))
	for _, m := range models {
		if !hidden[m.ProviderID] {
			out = append(out, m)
		}
	}
	return out
}

// ModelByID looks up a catalog entry.
func ModelByID(id string) (domain.ModelDescriptor, error) {
	for _, m := range models {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.ModelDescriptor{}, domain.ErrUnknownModel
}

// KnownProvider reports whether id is in the enumerated provider set.
func KnownProvider(id string) bool {
	switch id {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderMistral,
		ProviderGroq, ProviderFireworks, ProviderTogetherAI, ProviderXAI,
		ProviderOllama, ProviderBedrock:
		return true
	}
	return false
}
