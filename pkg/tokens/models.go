package tokens

import "strings"

var knownFamilies = []string{
	"gpt-3.5", "gpt-4", "gpt-4o", "o1", "o3", "text-embedding",
	"llama", "codellama", "gemma", "mistral", "mixtral", "qwen", "phi",
	"nomic", "mxbai", "claude", "deepseek",
}

// NormalizeModel strips a provider prefix ("openai/gpt-4o") and an Ollama
// tag suffix ("llama3:8b").
func NormalizeModel(model string) string {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return name
}

// EncodingFor resolves a model name to an encoding. The boolean is false
// when the model belongs to no known family.
func EncodingFor(model string) (string, bool) {
	name := NormalizeModel(model)
	for _, family := range knownFamilies {
		if strings.HasPrefix(name, family) {
			return DefaultEncoding, true
		}
	}
	return DefaultEncoding, false
}
