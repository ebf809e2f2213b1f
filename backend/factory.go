package backend

import (
	"time"

	"veritas-client/llm"
	"veritas-client/utils"
)

// NewFromConfig builds a Selector from the application config: the primary
// backend at backend.url and the enabled direct providers in fallback order.
// Providers that fail to initialize are logged and skipped.
func NewFromConfig(config *utils.Config, logger *utils.Logger) *Selector {
	if logger == nil {
		logger = utils.NewNopLogger()
	}

	requestTimeout := time.Duration(config.Backend.RequestTimeoutSeconds) * time.Second

	var primary Primary
	if config.Backend.URL != "" {
		primary = llm.NewProxyClient(config.Backend.URL, requestTimeout)
		logger.Info("Primary backend: %s", config.Backend.URL)
	}

	var direct []llm.Transport
	for _, name := range config.EnabledFallbacks() {
		providerConfig := config.LLMProviders[name]

		// Use display name if available, otherwise use config key
		displayName := providerConfig.DisplayName
		if displayName == "" {
			displayName = name
		}

		llmConfig := llm.Config{
			ProviderName: displayName,
			APIKey:       providerConfig.APIKey,
			BaseURL:      providerConfig.BaseURL,
			Model:        providerConfig.DefaultModel,
			AudioModel:   providerConfig.AudioModel,
			Timeout:      config.Backend.RequestTimeoutSeconds,
			MaxTokens:    providerConfig.MaxTokens,
			Temperature:  providerConfig.Temperature,
		}

		var (
			provider llm.Transport
			err      error
		)
		switch providerConfig.Kind {
		case "gemini":
			provider, err = llm.NewGeminiProvider(llmConfig)
		case "openai":
			provider, err = llm.NewOpenAIProvider(llmConfig)
		default:
			logger.Warn("Provider %s has unknown kind %q", name, providerConfig.Kind)
			continue
		}
		if err != nil {
			logger.Error("Failed to initialize %s provider: %v", name, err)
			continue
		}
		direct = append(direct, provider)
		logger.Info("%s provider initialized successfully", name)
	}

	return NewSelector(primary, direct, time.Duration(config.Backend.ProbeTimeoutSeconds)*time.Second, logger)
}
