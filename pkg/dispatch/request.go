package dispatch

// Request 描述一次来自任意前端（REPL、HTTP）的用户输入。
type Request struct {
	ID        string            // 请求 ID，可为空
	SessionID string            // 会话 ID，对应 conversation 中的 session
	SenderID  string            // 触发用户标识
	Text      string            // 用户输入文本
	Metadata  map[string]string // 扩展键值，如前端类型
}

// CloneMetadata 返回一份 Metadata 拷贝，防止 Handler 意外修改底层数据。
func (r Request) CloneMetadata() map[string]string {
	if len(r.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		out[k] = v
	}
	return out
}
