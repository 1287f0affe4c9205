package domain

// Roles of a chat completion message.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatMessage is one message sent to the extraction model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
