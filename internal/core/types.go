package core

const (
	AppName      = "localrag"
	AppUserAgent = "localrag/0.1"
	AppVersion   = "0.1.0"

	AppRepositoryURL = "https://github.com/sandevgo/localrag"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length,omitempty"`
}
