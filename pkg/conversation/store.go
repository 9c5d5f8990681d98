package conversation

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
)

// SessionStore 管理按会话 ID 划分的消息历史。
//
// 已知限制：对同一个会话 ID 的并发 Ask 不做线性化保证，
// 只保证单次 Append 是原子的（一次提交的 user/assistant 两条消息不会被其他提交插入）。
type SessionStore interface {
	// GetOrCreate 返回已有会话，不存在时原子地创建一个空会话并登记。
	GetOrCreate(ctx context.Context, sessionID string) (*Session, error)

	// Append 按顺序把消息追加到会话末尾，不会发起任何外部调用。
	// 会话不存在时返回 ErrSessionNotFound。
	Append(ctx context.Context, sessionID string, msgs ...Message) error

	// History 返回会话历史的快照。会话不存在时返回 ErrSessionNotFound。
	History(ctx context.Context, sessionID string) ([]Message, error)
}

// Session 是一段会话，消息只追加、不重排、不去重。
type Session struct {
	ID string

	mu      sync.Mutex
	history *memory.ChatMessageHistory
}

func newSession(id string) *Session {
	return &Session{
		ID:      id,
		history: memory.NewChatMessageHistory(),
	}
}

// Messages 返回当前历史的拷贝，调用方修改返回值不会影响会话。
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, _ := s.history.Messages(context.Background())
	out := make([]Message, 0, len(raw))
	for _, msg := range raw {
		m, err := FromChatMessage(msg)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Len 返回历史消息条数。
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, _ := s.history.Messages(context.Background())
	return len(raw)
}

// append 在会话锁内一次性追加多条消息。
func (s *Session) append(ctx context.Context, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		var err error
		switch m.Role {
		case RoleUser:
			err = s.history.AddUserMessage(ctx, m.Content)
		case RoleAssistant:
			err = s.history.AddAIMessage(ctx, m.Content)
		default:
			err = s.history.AddMessage(ctx, llms.SystemChatMessage{Content: m.Content})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MemoryStore 是进程内的 SessionStore 实现。
// 没有删除、没有容量上限、没有持久化，进程退出即丢失。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore 创建空的内存会话存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// GetOrCreate 实现 SessionStore。
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 双重检查，防止并发创建出两个会话
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	sess = newSession(sessionID)
	s.sessions[sessionID] = sess
	return sess, nil
}

// Append 实现 SessionStore。
func (s *MemoryStore) Append(ctx context.Context, sessionID string, msgs ...Message) error {
	sess, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if len(msgs) == 0 {
		return nil
	}
	return sess.append(ctx, msgs)
}

// History 实现 SessionStore。
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	sess, ok := s.lookup(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess.Messages(), nil
}

// Sessions 返回已登记的会话 ID，顺序不固定。
func (s *MemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *MemoryStore) lookup(sessionID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

var _ SessionStore = (*MemoryStore)(nil)
