package command

import (
	"encoding/json"
	"sync"

	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
)

// MemoryStore 提供基于内存的命令上下文存储。
// 只保存 last_query 之类的旁路信息，聊天历史在 conversation.SessionStore 中。
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]ContextValues
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]ContextValues)}
}

// Load 返回指定 key 的上下文副本。
func (s *MemoryStore) Load(key string) (ContextValues, error) {
	if s == nil || key == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.data[key]), nil
}

// Save 合并并存储上下文增量，同名键按最新值覆盖。
func (s *MemoryStore) Save(key string, values ContextValues) error {
	if s == nil || key == "" || len(values) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := cloneValues(s.data[key])
	if merged == nil {
		merged = ContextValues{}
	}
	for k, v := range values {
		merged[k] = v
	}
	s.data[key] = merged
	return nil
}

// RecordAnswer 把一次问答的检索查询与来源写入上下文，供 /sources 查看。
func RecordAnswer(store ConversationStore, sessionID string, answer *conversation.Answer) error {
	if store == nil || answer == nil {
		return nil
	}
	sources, err := json.Marshal(answer.Context)
	if err != nil {
		return err
	}
	return store.Save(sessionID, ContextValues{
		KeyLastQuery:   answer.Query,
		KeyLastSources: string(sources),
	})
}

// Sources 解析上下文中记录的来源片段。
func (v ContextValues) Sources() []string {
	raw, ok := v[KeyLastSources]
	if !ok || raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// cloneValues 复制上下文字典，避免共享引用。
func cloneValues(src ContextValues) ContextValues {
	if len(src) == 0 {
		return nil
	}
	dst := make(ContextValues, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
