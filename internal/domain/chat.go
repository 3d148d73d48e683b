package domain

// Conversation roles accepted from callers. The remote endpoint only knows
// "user" and "model"; translation happens in the gemini integration.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleModel  = "model"
)

// ChatMessage is the provider-agnostic chat message shape used by the usecase
// layer and LLM integrations. Slices of ChatMessage are ordered turns.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
