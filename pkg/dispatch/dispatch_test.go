package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai/aitest"
	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
)

func staticHandler(text string) Handler {
	return HandlerFunc(func(_ context.Context, _ Request) <-chan Chunk {
		ch := make(chan Chunk, 1)
		ch <- Chunk{Content: text, IsFinal: true}
		close(ch)
		return ch
	})
}

func TestChainRoutesInOrder(t *testing.T) {
	chain := NewChain(staticHandler("default"))
	chain.AddRoute("command", MatchPrefix("/"), staticHandler("command"))
	chain.AddRoute("never", MatchAny(), staticHandler("shadowed"))

	text, _ := Collect(chain.Handle(context.Background(), Request{Text: "  /history"}))
	assert.Equal(t, "command", text)

	text, _ = Collect(chain.Handle(context.Background(), Request{Text: "hello"}))
	assert.Equal(t, "shadowed", text)
}

func TestChainDefaultAndSilent(t *testing.T) {
	chain := NewChain(staticHandler("default"))
	text, _ := Collect(chain.Handle(context.Background(), Request{Text: "hello"}))
	assert.Equal(t, "default", text)

	silent := NewChain(nil)
	assert.Nil(t, silent.Handle(context.Background(), Request{Text: "hello"}))
	text, payload := Collect(nil)
	assert.Empty(t, text)
	assert.Nil(t, payload)
}

func TestCloneMetadata(t *testing.T) {
	req := Request{Metadata: map[string]string{"frontend": "repl"}}
	md := req.CloneMetadata()
	md["frontend"] = "http"
	assert.Equal(t, "repl", req.Metadata["frontend"])
	assert.Nil(t, Request{}.CloneMetadata())
}

func TestAskHandlerReturnsAnswer(t *testing.T) {
	p := conversation.NewPipeline(aitest.Texts("It is a search service."), aitest.NewStaticStore("Kendra docs"))

	var hooked *conversation.Answer
	h := AskHandler(p, WithAnswerHook(func(_ Request, a *conversation.Answer) { hooked = a }))

	text, payload := Collect(h.Handle(context.Background(), Request{SessionID: "s", Text: "What is Amazon Kendra?"}))
	assert.Equal(t, "It is a search service.", text)
	answer, ok := payload.(*conversation.Answer)
	require.True(t, ok)
	assert.Equal(t, []string{"Kendra docs"}, answer.Context)
	assert.Same(t, answer, hooked)
}

func TestAskHandlerReportsStage(t *testing.T) {
	store := &aitest.StaticStore{Err: errors.New("index offline")}
	p := conversation.NewPipeline(aitest.Texts(), store)

	text, payload := Collect(AskHandler(p).Handle(context.Background(), Request{SessionID: "s", Text: "q"}))
	assert.Contains(t, text, "retrieve step failed")
	assert.Nil(t, payload)
}
