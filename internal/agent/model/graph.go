package model

// DefaultThreadID is used when a caller omits the thread id.
const DefaultThreadID = "default"

// QueryInput represents one user turn.
type QueryInput struct {
	ThreadID string `json:"thread_id"`
	Question string `json:"question"`
}

// TurnResult is what a turn surfaces to the caller.
type TurnResult struct {
	ThreadID string   `json:"thread_id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Source   Source   `json:"source"`
	Intent   Intent   `json:"-"`
	Relevant *bool    `json:"relevant,omitempty"`
	Path     []string `json:"path,omitempty"`
}
