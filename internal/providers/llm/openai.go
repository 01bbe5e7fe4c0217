package llm

// OpenAI is the hosted OpenAI API.
type OpenAI struct {
	*OpenAICompatible
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		OpenAICompatible: NewOpenAICompatible(OpenAICompatibleConfig{
			BaseURL: "https://api.openai.com/v1/",
			APIKey:  apiKey,
			Model:   model,
		}),
	}
}
