package llm

// CustomOpenAI is a self-hosted OpenAI-compatible server (llama.cpp, vLLM,
// LM Studio). baseURL includes the version prefix, e.g. http://localhost:8080/v1.
type CustomOpenAI struct {
	*OpenAICompatible
}

func NewCustomOpenAI(baseURL, apiKey, model string) *CustomOpenAI {
	return &CustomOpenAI{
		OpenAICompatible: NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   model,
		}),
	}
}
