package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownToolCallID flags a tool-result append whose call id was never
// issued by a preceding assistant message. Transcripts are never allowed to
// become internally inconsistent.
var ErrUnknownToolCallID = errors.New("conversation: tool result references an unknown tool call id")

// SessionSeeder produces the initial messages of a new session. The first
// message must be the system prompt.
type SessionSeeder func(ctx context.Context, sessionID string) []Message

// SessionStore tracks conversation transcripts by session id. Trim and
// EvictOverCapacity are independent maintenance operations invoked around each
// turn rather than a single transaction.
type SessionStore interface {
	// GetOrCreate returns the transcript, seeding a new session if absent.
	GetOrCreate(ctx context.Context, sessionID string) ([]Message, error)
	// Append adds messages to an existing session, validating tool call ids.
	Append(ctx context.Context, sessionID string, msgs ...Message) error
	// Messages returns the current transcript.
	Messages(ctx context.Context, sessionID string) ([]Message, error)
	// Trim retains all system messages plus the most recent maxMessages
	// messages when the transcript has grown beyond the cap.
	Trim(ctx context.Context, sessionID string, maxMessages int) error
	// EvictOverCapacity removes the oldest-created ~20% of sessions when more
	// than maxSessions are tracked.
	EvictOverCapacity(ctx context.Context, maxSessions int) error
	// List returns the tracked session ids.
	List(ctx context.Context) ([]string, error)
}

type memorySession struct {
	mu        sync.Mutex
	createdAt time.Time
	messages  []Message
}

// MemorySessionStore is the in-process SessionStore. A per-session mutex
// serializes concurrent appends for the same session id.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	seed     SessionSeeder
	clock    func() time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

func NewMemorySessionStore(seed SessionSeeder) *MemorySessionStore {
	if seed == nil {
		panic("conversation: session seeder cannot be nil")
	}
	return &MemorySessionStore{
		sessions: make(map[string]*memorySession),
		seed:     seed,
		clock:    time.Now,
	}
}

func (s *MemorySessionStore) session(ctx context.Context, sessionID string, create bool) (*memorySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	if !create {
		return nil, fmt.Errorf("conversation: unknown session %s", sessionID)
	}
	sess := &memorySession{
		createdAt: s.clock(),
		messages:  s.seed(ctx, sessionID),
	}
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *MemorySessionStore) GetOrCreate(ctx context.Context, sessionID string) ([]Message, error) {
	sess, err := s.session(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]Message(nil), sess.messages...), nil
}

func (s *MemorySessionStore) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	sess, err := s.session(ctx, sessionID, false)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	merged, err := appendValidated(sess.messages, msgs)
	if err != nil {
		return err
	}
	sess.messages = merged
	return nil
}

func (s *MemorySessionStore) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	sess, err := s.session(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]Message(nil), sess.messages...), nil
}

func (s *MemorySessionStore) Trim(ctx context.Context, sessionID string, maxMessages int) error {
	sess, err := s.session(ctx, sessionID, false)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.messages = trimTranscript(sess.messages, maxMessages)
	return nil
}

func (s *MemorySessionStore) EvictOverCapacity(_ context.Context, maxSessions int) error {
	if maxSessions <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) <= maxSessions {
		return nil
	}

	type aged struct {
		id        string
		createdAt time.Time
	}
	all := make([]aged, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, aged{id: id, createdAt: sess.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	evict := maxSessions / 5
	if evict < 1 {
		evict = 1
	}
	for _, victim := range all[:evict] {
		delete(s.sessions, victim.id)
	}
	return nil
}

func (s *MemorySessionStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// appendValidated enforces the transcript invariant: a tool message must
// reference a call id issued by a preceding assistant message.
func appendValidated(existing, incoming []Message) ([]Message, error) {
	issued := make(map[string]struct{})
	for _, msg := range existing {
		for _, call := range msg.ToolCalls {
			issued[call.ID] = struct{}{}
		}
	}
	merged := existing
	for _, msg := range incoming {
		if msg.Role == RoleTool {
			if _, ok := issued[msg.ToolCallID]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownToolCallID, msg.ToolCallID)
			}
		}
		for _, call := range msg.ToolCalls {
			issued[call.ID] = struct{}{}
		}
		merged = append(merged, msg)
	}
	return merged, nil
}

// trimTranscript keeps every system message plus the most recent maxMessages
// non-system messages. The seed system message therefore stays at index 0.
// The cut can strand a tool result whose issuing assistant message was
// evicted; such orphans are dropped too, keeping the transcript replayable.
func trimTranscript(messages []Message, maxMessages int) []Message {
	if maxMessages <= 0 || len(messages) <= maxMessages {
		return messages
	}

	var system, rest []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	if len(rest) > maxMessages {
		rest = rest[len(rest)-maxMessages:]
	}

	issued := make(map[string]struct{})
	kept := make([]Message, 0, len(rest))
	for _, msg := range rest {
		if msg.Role == RoleTool {
			if _, ok := issued[msg.ToolCallID]; !ok {
				continue
			}
		}
		for _, call := range msg.ToolCalls {
			issued[call.ID] = struct{}{}
		}
		kept = append(kept, msg)
	}
	return append(system, kept...)
}
