package conversation

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rxassist/pharmacy-assistant/internal/compliance"
	"github.com/rxassist/pharmacy-assistant/internal/observability/metrics"
	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

const partialAnswerNotice = "I had to stop before finishing this request. Please ask again or contact the pharmacist directly."

// Event is one increment forwarded to the caller while a turn runs. Exactly
// one of Content, Tool, or Err is set.
type Event struct {
	Content string
	Tool    string
	Args    json.RawMessage
	Err     string
}

// EmitFunc forwards one event to the caller. A returned error means the
// caller is gone; the orchestrator stops forwarding but keeps the transcript
// mutations already made, since they reflect tool calls that really executed.
type EmitFunc func(Event) error

// Orchestrator drives one conversational turn: stream a completion,
// accumulate text and tool calls, execute tools, repeat until the model stops
// requesting tools or the turn budget runs out.
type Orchestrator struct {
	llm        StreamingLLMClient
	tools      *Registry
	sessions   SessionStore
	disclaimer *compliance.DisclaimerService
	metrics    *metrics.ConversationMetrics
	logger     *logging.Logger

	model       string
	maxTokens   int32
	maxTurns    int
	turnTimeout time.Duration
}

type OrchestratorConfig struct {
	Model       string
	MaxTokens   int32
	MaxTurns    int
	TurnTimeout time.Duration
}

func NewOrchestrator(
	llm StreamingLLMClient,
	tools *Registry,
	sessions SessionStore,
	disclaimer *compliance.DisclaimerService,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if llm == nil {
		panic("conversation: llm client cannot be nil")
	}
	if tools == nil {
		panic("conversation: tool registry cannot be nil")
	}
	if sessions == nil {
		panic("conversation: session store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	return &Orchestrator{
		llm:         llm,
		tools:       tools,
		sessions:    sessions,
		disclaimer:  disclaimer,
		metrics:     m,
		logger:      logger,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		maxTurns:    cfg.MaxTurns,
		turnTimeout: cfg.TurnTimeout,
	}
}

// pendingCall accumulates one streamed tool-call block by its position index.
type pendingCall struct {
	index int
	call  ToolCall
}

// RunTurn executes one caller turn against the session transcript. Errors
// from the model stream are emitted as terminal error events and returned;
// the transcript keeps whatever was appended before the failure.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID string, emit EmitFunc) error {
	forwarding := true
	forward := func(ev Event) {
		if !forwarding || emit == nil {
			return
		}
		if err := emit(ev); err != nil {
			o.logger.Info("caller disconnected mid-stream", "session_id", sessionID)
			forwarding = false
		}
	}

	for turn := 0; turn < o.maxTurns; turn++ {
		text, calls, err := o.streamOnce(ctx, sessionID, forward)
		if err != nil {
			forward(Event{Err: err.Error()})
			o.metrics.ObserveTurn("error")
			return err
		}

		if len(calls) == 0 {
			final := text
			if o.disclaimer != nil {
				var added bool
				if final, added = o.disclaimer.Ensure(text); added {
					forward(Event{Content: final[len(text):]})
				}
			}
			if err := o.sessions.Append(ctx, sessionID, Message{Role: RoleAssistant, Content: final}); err != nil {
				o.metrics.ObserveTurn("error")
				return err
			}
			o.metrics.ObserveTurn("completed")
			return nil
		}

		assistant := Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
		if err := o.sessions.Append(ctx, sessionID, assistant); err != nil {
			o.metrics.ObserveTurn("error")
			return err
		}

		// All calls of this model turn execute concurrently; the next turn
		// starts only once every result is in the transcript.
		outcomes := o.tools.Dispatch(ctx, calls)
		for _, outcome := range outcomes {
			status := "ok"
			if outcome.IsError {
				status = "error"
			}
			o.metrics.ObserveToolInvocation(outcome.Call.Name, status)

			msg := Message{Role: RoleTool, Content: outcome.Payload, ToolCallID: outcome.Call.ID}
			if err := o.sessions.Append(ctx, sessionID, msg); err != nil {
				o.metrics.ObserveTurn("error")
				return err
			}
			forward(Event{Tool: outcome.Call.Name, Args: eventArgs(outcome.Call.Arguments)})
		}
	}

	o.logger.Warn("turn budget exhausted", "session_id", sessionID, "max_turns", o.maxTurns)
	forward(Event{Content: partialAnswerNotice})
	if err := o.sessions.Append(ctx, sessionID, Message{Role: RoleAssistant, Content: partialAnswerNotice}); err != nil {
		o.metrics.ObserveTurn("error")
		return err
	}
	o.metrics.ObserveTurn("max_turns")
	return nil
}

// streamOnce requests one streamed completion and accumulates its output.
// Text fragments are forwarded as they arrive; tool-call fragments are
// assembled per block index, with argument text concatenated in order.
func (o *Orchestrator) streamOnce(ctx context.Context, sessionID string, forward func(Event)) (string, []ToolCall, error) {
	messages, err := o.sessions.Messages(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	streamCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.turnTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, o.turnTimeout)
	}
	defer cancel()

	started := time.Now()
	chunks, err := o.llm.CompleteStream(streamCtx, LLMRequest{
		Model:       o.model,
		Messages:    messages,
		Tools:       o.tools.Specs(),
		MaxTokens:   o.maxTokens,
		Temperature: -1,
	})
	if err != nil {
		return "", nil, err
	}

	var (
		text    []byte
		pending = map[int]*pendingCall{}
	)
	for chunk := range chunks {
		if chunk.Error != nil {
			o.metrics.ObserveStreamLatency(time.Since(started).Seconds())
			return "", nil, chunk.Error
		}
		if chunk.Text != "" {
			text = append(text, chunk.Text...)
			forward(Event{Content: chunk.Text})
		}
		if delta := chunk.ToolUse; delta != nil {
			pc, ok := pending[delta.Index]
			if !ok {
				pc = &pendingCall{index: delta.Index}
				pending[delta.Index] = pc
			}
			if delta.ID != "" {
				pc.call.ID = delta.ID
			}
			if delta.Name != "" {
				pc.call.Name = delta.Name
			}
			pc.call.Arguments += delta.Arguments
		}
	}
	o.metrics.ObserveStreamLatency(time.Since(started).Seconds())

	ordered := make([]*pendingCall, 0, len(pending))
	for _, pc := range pending {
		ordered = append(ordered, pc)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	calls := make([]ToolCall, 0, len(ordered))
	for _, pc := range ordered {
		if pc.call.ID == "" {
			pc.call.ID = uuid.NewString()
		}
		calls = append(calls, pc.call)
	}
	return string(text), calls, nil
}

// eventArgs returns the call arguments for the tool notification event,
// falling back to an empty object when the model produced invalid JSON.
func eventArgs(arguments string) json.RawMessage {
	raw := json.RawMessage(arguments)
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("{}")
	}
	return raw
}
