package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rxassist/pharmacy-assistant/internal/compliance"
)

// scriptedLLM replays pre-built chunk sequences, one per CompleteStream call.
type scriptedLLM struct {
	turns    [][]StreamChunk
	requests []LLMRequest
	err      error
}

func (s *scriptedLLM) CompleteStream(_ context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	if len(s.turns) == 0 {
		return nil, errors.New("scripted llm exhausted")
	}
	turn := s.turns[0]
	s.turns = s.turns[1:]

	out := make(chan StreamChunk, len(turn))
	for _, chunk := range turn {
		out <- chunk
	}
	close(out)
	return out, nil
}

func textTurn(fragments ...string) []StreamChunk {
	chunks := make([]StreamChunk, 0, len(fragments)+1)
	for _, fragment := range fragments {
		chunks = append(chunks, StreamChunk{Text: fragment})
	}
	return append(chunks, StreamChunk{Done: true, StopReason: "end_turn"})
}

func toolTurn(name, id, args string) []StreamChunk {
	return []StreamChunk{
		{ToolUse: &ToolUseDelta{Index: 1, ID: id, Name: name}},
		{ToolUse: &ToolUseDelta{Index: 1, Arguments: args[:len(args)/2]}},
		{ToolUse: &ToolUseDelta{Index: 1, Arguments: args[len(args)/2:]}},
		{Done: true, StopReason: "tool_use"},
	}
}

func newTestOrchestrator(llm StreamingLLMClient, tools *Registry, sessions SessionStore) *Orchestrator {
	return NewOrchestrator(llm, tools, sessions,
		compliance.NewDisclaimerService(compliance.DefaultDisclaimerConfig()),
		nil, nil,
		OrchestratorConfig{Model: "test-model", MaxTokens: 512, MaxTurns: 4},
	)
}

func runTurn(t *testing.T, o *Orchestrator, sessions SessionStore, input string) []Event {
	t.Helper()
	ctx := context.Background()
	if _, err := sessions.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Append(ctx, "s1", Message{Role: RoleUser, Content: input}); err != nil {
		t.Fatal(err)
	}
	var events []Event
	if err := o.RunTurn(ctx, "s1", func(ev Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	return events
}

func TestRunTurn_PlainAnswer(t *testing.T) {
	llm := &scriptedLLM{turns: [][]StreamChunk{textTurn("Advil is ", "in stock.")}}
	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, NewRegistry(nil), sessions)

	events := runTurn(t, o, sessions, "Is Advil in stock?")

	var content strings.Builder
	for _, ev := range events {
		if ev.Tool != "" || ev.Err != "" {
			t.Fatalf("unexpected non-content event: %+v", ev)
		}
		content.WriteString(ev.Content)
	}
	if !strings.HasPrefix(content.String(), "Advil is in stock.") {
		t.Fatalf("streamed content = %q", content.String())
	}
	// The disclaimer is appended and streamed as a trailing content event.
	if !strings.Contains(content.String(), "This information is for reference only.") {
		t.Fatalf("disclaimer missing from stream: %q", content.String())
	}

	msgs, err := sessions.Messages(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	final := msgs[len(msgs)-1]
	if final.Role != RoleAssistant {
		t.Fatalf("final role = %q", final.Role)
	}
	if !strings.Contains(final.Content, "This information is for reference only.") {
		t.Fatalf("persisted answer missing disclaimer: %q", final.Content)
	}
}

func TestRunTurn_ToolRoundTrip(t *testing.T) {
	llm := &scriptedLLM{turns: [][]StreamChunk{
		toolTurn("lookup", "call-1", `{"name":"Advil"}`),
		textTurn("Advil has 42 units in stock."),
	}}

	tools := NewRegistry(nil)
	var gotArgs string
	tools.Register(ToolSpec{Name: "lookup"}, func(_ context.Context, raw json.RawMessage) (any, error) {
		gotArgs = string(raw)
		return map[string]int{"stock": 42}, nil
	})

	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, tools, sessions)
	events := runTurn(t, o, sessions, "How much Advil is in stock?")

	// Fragments streamed for the call's arguments were reassembled.
	if gotArgs != `{"name":"Advil"}` {
		t.Fatalf("tool received args %q", gotArgs)
	}

	var sawTool bool
	for _, ev := range events {
		if ev.Tool == "lookup" {
			sawTool = true
			if string(ev.Args) != `{"name":"Advil"}` {
				t.Fatalf("tool event args = %s", ev.Args)
			}
		}
	}
	if !sawTool {
		t.Fatal("no tool event emitted")
	}

	msgs, err := sessions.Messages(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	// seed, user, assistant(tool call), tool result, final assistant.
	if len(msgs) != 5 {
		t.Fatalf("transcript has %d messages: %+v", len(msgs), msgs)
	}
	if msgs[2].Role != RoleAssistant || len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("assistant tool-call message = %+v", msgs[2])
	}
	if msgs[3].Role != RoleTool || msgs[3].ToolCallID != "call-1" {
		t.Fatalf("tool result message = %+v", msgs[3])
	}
	if !strings.Contains(msgs[3].Content, `"stock":42`) {
		t.Fatalf("tool result payload = %q", msgs[3].Content)
	}

	// The second completion request carried the tool result back to the model.
	if len(llm.requests) != 2 {
		t.Fatalf("model called %d times, want 2", len(llm.requests))
	}
	last := llm.requests[1].Messages
	if last[len(last)-1].Role != RoleTool {
		t.Fatalf("second request does not end with tool result: %+v", last[len(last)-1])
	}
}

func TestRunTurn_ParallelToolCalls(t *testing.T) {
	llm := &scriptedLLM{turns: [][]StreamChunk{
		{
			{ToolUse: &ToolUseDelta{Index: 2, ID: "call-b", Name: "second"}},
			{ToolUse: &ToolUseDelta{Index: 1, ID: "call-a", Name: "first"}},
			{ToolUse: &ToolUseDelta{Index: 1, Arguments: `{}`}},
			{ToolUse: &ToolUseDelta{Index: 2, Arguments: `{}`}},
			{Done: true, StopReason: "tool_use"},
		},
		textTurn("Done."),
	}}

	tools := NewRegistry(nil)
	noop := func(context.Context, json.RawMessage) (any, error) { return "ok", nil }
	tools.Register(ToolSpec{Name: "first"}, noop)
	tools.Register(ToolSpec{Name: "second"}, noop)

	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, tools, sessions)
	events := runTurn(t, o, sessions, "do both")

	var order []string
	for _, ev := range events {
		if ev.Tool != "" {
			order = append(order, ev.Tool)
		}
	}
	// Events follow block-index order regardless of stream arrival order.
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("tool event order = %v", order)
	}
}

func TestRunTurn_MaxTurnsExhausted(t *testing.T) {
	// The model asks for a tool on every turn and never produces an answer.
	turns := make([][]StreamChunk, 4)
	for i := range turns {
		turns[i] = toolTurn("loop", "call", `{}`)
	}
	llm := &scriptedLLM{turns: turns}

	tools := NewRegistry(nil)
	tools.Register(ToolSpec{Name: "loop"}, func(context.Context, json.RawMessage) (any, error) {
		return "again", nil
	})

	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, tools, sessions)
	events := runTurn(t, o, sessions, "loop forever")

	last := events[len(events)-1]
	if last.Content != partialAnswerNotice {
		t.Fatalf("last event = %+v, want partial-answer notice", last)
	}

	msgs, _ := sessions.Messages(context.Background(), "s1")
	if msgs[len(msgs)-1].Content != partialAnswerNotice {
		t.Fatal("partial-answer notice not persisted")
	}
}

func TestRunTurn_StreamErrorEmitted(t *testing.T) {
	llm := &scriptedLLM{turns: [][]StreamChunk{
		{{Text: "partial"}, {Error: errors.New("throttled"), Done: true}},
	}}
	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, NewRegistry(nil), sessions)

	ctx := context.Background()
	if _, err := sessions.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Append(ctx, "s1", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	var events []Event
	err := o.RunTurn(ctx, "s1", func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "throttled") {
		t.Fatalf("RunTurn err = %v", err)
	}
	last := events[len(events)-1]
	if last.Err == "" {
		t.Fatalf("no terminal error event: %+v", events)
	}
}

func TestRunTurn_EmitFailureKeepsTranscript(t *testing.T) {
	llm := &scriptedLLM{turns: [][]StreamChunk{
		toolTurn("lookup", "call-1", `{}`),
		textTurn("All done."),
	}}
	tools := NewRegistry(nil)
	tools.Register(ToolSpec{Name: "lookup"}, func(context.Context, json.RawMessage) (any, error) {
		return "ok", nil
	})

	sessions := NewMemorySessionStore(plainSeeder)
	o := newTestOrchestrator(llm, tools, sessions)

	ctx := context.Background()
	if _, err := sessions.GetOrCreate(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Append(ctx, "s1", Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	// Caller disconnects immediately; the turn still completes server-side.
	if err := o.RunTurn(ctx, "s1", func(Event) error {
		return errors.New("client gone")
	}); err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	msgs, _ := sessions.Messages(ctx, "s1")
	final := msgs[len(msgs)-1]
	if final.Role != RoleAssistant || !strings.Contains(final.Content, "All done.") {
		t.Fatalf("final message = %+v", final)
	}
}
