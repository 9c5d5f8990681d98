package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IMBotPlatform/IMBotRAG/pkg/dispatch"
)

func TestStreamWriterForwardsEachWrite(t *testing.T) {
	ch := make(chan dispatch.Chunk, 10)
	w := NewStreamWriter(context.Background(), ch)

	for _, part := range []string{"[user] ", "What is Amazon Kendra?\n"} {
		if _, err := fmt.Fprint(w, part); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// 每个片段只包含本次写入的增量，且都不是 Final
	for _, want := range []string{"[user] ", "What is Amazon Kendra?\n"} {
		select {
		case chunk := <-ch:
			if chunk.Content != want {
				t.Errorf("expected chunk %q, got %q", want, chunk.Content)
			}
			if chunk.IsFinal {
				t.Errorf("chunk %q should not be final", chunk.Content)
			}
		default:
			t.Fatalf("expected chunk %q available", want)
		}
	}
}

func TestStreamWriterIgnoresEmptyWrite(t *testing.T) {
	ch := make(chan dispatch.Chunk, 1)
	n, err := NewStreamWriter(context.Background(), ch).Write(nil)
	if err != nil || n != 0 {
		t.Fatalf("unexpected result n=%d err=%v", n, err)
	}
	if len(ch) != 0 {
		t.Fatalf("empty write must not emit a chunk")
	}
}

func TestStreamWriterStopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 无缓冲且无人读取，取消后不能阻塞
	n, err := NewStreamWriter(ctx, make(chan dispatch.Chunk)).Write([]byte("lost"))
	if !errors.Is(err, context.Canceled) || n != 0 {
		t.Fatalf("expected context.Canceled, got n=%d err=%v", n, err)
	}
}
