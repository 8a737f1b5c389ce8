package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rxassist/pharmacy-assistant/pkg/logging"
)

// ToolHandler executes one tool call. The returned value is serialized as the
// tool-result payload; a returned error becomes a structured error payload
// instead of failing the turn.
type ToolHandler func(ctx context.Context, args json.RawMessage) (any, error)

type registeredTool struct {
	spec    ToolSpec
	handler ToolHandler
}

// Registry maps tool names to handlers and executes dispatched calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string

	logger *logging.Logger
}

func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger,
	}
}

func (r *Registry) Register(spec ToolSpec, handler ToolHandler) {
	if spec.Name == "" {
		panic("conversation: tool name cannot be empty")
	}
	if handler == nil {
		panic("conversation: tool handler cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; !exists {
		r.order = append(r.order, spec.Name)
	}
	r.tools[spec.Name] = registeredTool{spec: spec, handler: handler}
}

// Specs lists the registered tool specifications in registration order.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].spec)
	}
	return specs
}

// ToolOutcome pairs a call with its serialized result payload. Payload is
// always valid JSON: either the handler's result or {"error": message}.
type ToolOutcome struct {
	Call    ToolCall
	Payload string
	IsError bool
}

// Dispatch executes all calls concurrently and returns outcomes in issue
// order. Unknown tools, malformed arguments, handler errors, and panics all
// become structured error payloads; dispatch itself never fails.
func (r *Registry) Dispatch(ctx context.Context, calls []ToolCall) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call ToolCall) {
			defer wg.Done()
			payload, isErr := r.invoke(ctx, call)
			outcomes[i] = ToolOutcome{Call: call, Payload: payload, IsError: isErr}
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (r *Registry) invoke(ctx context.Context, call ToolCall) (payload string, isErr bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "panic", fmt.Sprint(rec))
			payload = errorPayload(fmt.Sprintf("Tool execution failed: %v", rec))
			isErr = true
		}
	}()

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", call.Name)
		return errorPayload(fmt.Sprintf("Unknown tool: %s", call.Name)), true
	}

	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		r.logger.Warn("malformed tool arguments", "tool", call.Name)
		return errorPayload(fmt.Sprintf("Malformed arguments for tool %s", call.Name)), true
	}

	r.logger.Info("executing tool", "tool", call.Name, "call_id", call.ID)
	result, err := tool.handler(ctx, args)
	if err != nil {
		r.logger.Warn("tool returned error", "tool", call.Name, "error", err)
		return errorPayload(err.Error()), true
	}

	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("tool result not serializable", "tool", call.Name, "error", err)
		return errorPayload(fmt.Sprintf("Tool execution failed: %v", err)), true
	}
	return string(data), false
}

func errorPayload(message string) string {
	data, _ := json.Marshal(map[string]string{"error": message})
	return string(data)
}
