package vectorstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmc/langchaingo/embeddings"
)

// Save 把索引写入 JSONL 文件，每行一个条目。
// 先写临时文件再重命名，写入失败不会破坏已有快照。
func (s *Store) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false) // 保持原始字符，不转义 <, >, &

	s.mu.RLock()
	for _, e := range s.entries {
		if err := encoder.Encode(e); err != nil {
			s.mu.RUnlock()
			tmp.Close()
			return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
		}
	}
	count := len(s.entries)
	s.mu.RUnlock()

	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace index file: %w", err)
	}

	s.logger.Info().Str("path", path).Int("entries", count).Msg("index saved")
	return nil
}

// Load 从 JSONL 快照恢复索引。坏行会被跳过并记录警告。
func Load(path string, embedder embeddings.Embedder, opts ...Option) (*Store, error) {
	s := New(embedder, opts...)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// 向量行可能很长，默认 64KB 不够
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Int("line", lineNum).Msg("skipping malformed index line")
			continue
		}
		if e.ID == "" || len(e.Vector) == 0 {
			s.logger.Warn().Str("path", path).Int("line", lineNum).Msg("skipping incomplete index entry")
			continue
		}
		s.entries = append(s.entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning index file: %w", err)
	}

	s.logger.Info().Str("path", path).Int("entries", len(s.entries)).Msg("index loaded")
	return s, nil
}
