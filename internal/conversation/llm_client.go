package conversation

import "context"

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// ToolSpec describes one tool offered to the model. InputSchema is a JSON
// Schema object.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// ToolUseDelta is one streamed fragment of an in-progress tool call. ID and
// Name arrive once when the block starts; Arguments fragments arrive
// incrementally and must be concatenated in order. Index identifies the block
// within the current model turn.
type ToolUseDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamChunk is one increment of a streamed completion. Exactly one of Text,
// ToolUse, Error, or Done carries information.
type StreamChunk struct {
	Text       string
	ToolUse    *ToolUseDelta
	StopReason string
	Usage      TokenUsage
	Done       bool
	Error      error
}

// StreamingLLMClient produces streamed completions. The returned channel is
// closed after a chunk with Done or Error is delivered.
type StreamingLLMClient interface {
	CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error)
}
