package domain

// ChatMessage is the provider-agnostic turn shape sent to completion
// providers.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
