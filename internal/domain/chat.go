package domain

// Message roles. A system message, if present, must be first in the
// outgoing array; adapters enforce this by prepending their own.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a conversation. The history is owned by
// the caller; this core never retains it between calls.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatConfig is the per-call generation configuration. Immutable once
// a call starts.
type ChatConfig struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}

// StreamDelta is a single incremental fragment of a streamed response.
// The final delta has Done=true and carries the accumulated full text.
// A mid-stream failure sets Err; whatever streamed before it is still
// delivered in FullText, flagged incomplete.
type StreamDelta struct {
	Content    string `json:"content,omitempty"`
	Done       bool   `json:"done"`
	FullText   string `json:"full_text,omitempty"`
	Incomplete bool   `json:"incomplete,omitempty"`
	Err        error  `json:"-"`
}

// ChatRequest is the caller-facing request shape. History excludes the
// latest user turn, which is passed separately so augmentation can
// rewrite the text actually sent to the model while the original stays
// available for display.
type ChatRequest struct {
	Message string        `json:"message" binding:"required"`
	History []ChatMessage `json:"history,omitempty"`
	Model   string        `json:"model,omitempty"`
}

// ChatResult is the finalized response. Backend and Model report what
// actually served the request, which can differ from the preferred
// backend during a failover.
type ChatResult struct {
	Answer     string      `json:"answer"`
	Backend    BackendKind `json:"backend"`
	Model      string      `json:"model"`
	Augmented  bool        `json:"augmented,omitempty"`
	Incomplete bool        `json:"incomplete,omitempty"`
}
