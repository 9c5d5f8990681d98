package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/IMBotRAG/pkg/conversation"
	"github.com/IMBotPlatform/IMBotRAG/pkg/dispatch"
	"github.com/IMBotPlatform/IMBotRAG/pkg/router"
)

type fakeHistory map[string][]conversation.Message

func (f fakeHistory) History(_ context.Context, sessionID string) ([]conversation.Message, error) {
	msgs, ok := f[sessionID]
	if !ok {
		return nil, conversation.ErrSessionNotFound
	}
	return msgs, nil
}

type fakeRouter struct {
	got string
	err error
}

func (f *fakeRouter) Route(_ context.Context, input string) (router.Result, error) {
	f.got = input
	if f.err != nil {
		return router.Result{}, f.err
	}
	return router.Result{Destination: router.DestinationPoem, Answer: "Roses are red"}, nil
}

func run(t *testing.T, m *Manager, session, text string) (string, any) {
	t.Helper()
	return dispatch.Collect(m.Handle(context.Background(), dispatch.Request{SessionID: session, Text: text}))
}

func TestParseInvocation(t *testing.T) {
	inv, ok := ParseInvocation("  /Route  Compose a\tpoem ")
	require.True(t, ok)
	assert.Equal(t, "route", inv.Name)
	assert.Equal(t, []string{"Compose", "a", "poem"}, inv.Args)
	assert.Equal(t, "Compose a\tpoem", inv.Input)
	assert.Equal(t, []string{"route", "Compose", "a", "poem"}, inv.Tokens())

	inv, ok = ParseInvocation("/sources")
	require.True(t, ok)
	assert.Equal(t, []string{"sources"}, inv.Tokens())
	assert.Empty(t, inv.Input)

	for _, text := range []string{"What is Amazon Kendra?", "/", "/ route", "   ", "route /x"} {
		_, ok := ParseInvocation(text)
		assert.False(t, ok, text)
	}
}

func TestHistoryCommand(t *testing.T) {
	history := fakeHistory{"s1": {
		conversation.UserMessage("What is Amazon Kendra?"),
		conversation.AssistantMessage("A search service."),
	}}
	m := NewManager(NewFactory(), NewMemoryStore(), WithHistory(history))

	text, _ := run(t, m, "s1", "/history")
	assert.Equal(t, "[user] What is Amazon Kendra?\n[assistant] A search service.\n", text)

	text, _ = run(t, m, "s1", "/history -n 1")
	assert.Equal(t, "[assistant] A search service.\n", text)

	text, _ = run(t, m, "unknown", "/history")
	assert.Contains(t, text, "session not found")
}

func TestHistoryCommandWithoutService(t *testing.T) {
	m := NewManager(NewFactory(), nil)
	text, _ := run(t, m, "s1", "/history")
	assert.Contains(t, text, ErrServiceUnavailable.Error())
}

func TestSourcesCommand(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(NewFactory(), store)

	text, _ := run(t, m, "s1", "/sources")
	assert.Contains(t, text, "no sources recorded")

	require.NoError(t, RecordAnswer(store, "s1", &conversation.Answer{
		Query:   "How does Amazon Kendra relate to Amazon Bedrock?",
		Context: []string{"Kendra fragment", "Bedrock fragment"},
	}))
	text, _ = run(t, m, "s1", "/sources")
	assert.Contains(t, text, "query: How does Amazon Kendra relate to Amazon Bedrock?")
	assert.Contains(t, text, "--- [1] ---\nKendra fragment")
	assert.Contains(t, text, "--- [2] ---\nBedrock fragment")

	// 其他会话不受影响
	text, _ = run(t, m, "s2", "/sources")
	assert.Contains(t, text, "no sources recorded")
}

func TestRouteCommand(t *testing.T) {
	r := &fakeRouter{}
	m := NewManager(NewFactory(), nil, WithRouter(r))

	text, _ := run(t, m, "s1", "/route Compose a short poem about roses.")
	assert.Equal(t, "Compose a short poem about roses.", r.got)
	assert.Equal(t, "[poem]\nRoses are red\n", text)

	r.err = errors.New("classify failed")
	text, _ = run(t, m, "s1", "/route anything")
	assert.Contains(t, text, "command failed: classify failed")

	text, _ = run(t, m, "s1", "/route")
	assert.Contains(t, text, "command failed")
}

func TestSessionCommand(t *testing.T) {
	m := NewManager(NewFactory(), nil)

	text, payload := run(t, m, "s1", "/session")
	assert.Equal(t, "current session: s1\n", text)
	assert.Nil(t, payload)

	text, payload = run(t, m, "s1", "/session work")
	assert.Equal(t, "switched to session work\n", text)
	assert.Equal(t, SessionSwitch{SessionID: "work"}, payload)
}

func TestManagerRejectsNonCommands(t *testing.T) {
	m := NewManager(NewFactory(), nil)

	text, _ := run(t, m, "s1", "hello")
	assert.Contains(t, text, "unknown command: hello")

	text, _ = run(t, m, "s1", "")
	assert.Contains(t, text, "/help")

	text, _ = run(t, m, "s1", "/nope")
	assert.Contains(t, text, "command failed")

	var nilManager *Manager
	text, _ = dispatch.Collect(nilManager.Handle(context.Background(), dispatch.Request{Text: "/history"}))
	assert.Contains(t, text, "not initialized")
}

func TestMemoryStoreMergesValues(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save("k", ContextValues{"a": "1"}))
	require.NoError(t, store.Save("k", ContextValues{"b": "2", "a": "3"}))

	values, err := store.Load("k")
	require.NoError(t, err)
	assert.Equal(t, ContextValues{"a": "3", "b": "2"}, values)

	values["a"] = "changed"
	again, _ := store.Load("k")
	assert.Equal(t, "3", again["a"])

	empty, err := store.Load("")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestManagerStopsWhenCallerStopsReading(t *testing.T) {
	factory := func() *cobra.Command {
		root := &cobra.Command{Use: "bot", SilenceUsage: true, SilenceErrors: true}
		root.AddCommand(&cobra.Command{
			Use: "wait",
			RunE: func(cmd *cobra.Command, _ []string) error {
				<-cmd.Context().Done()
				return cmd.Context().Err()
			},
		})
		return root
	}
	m := NewManager(factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := m.Handle(ctx, dispatch.Request{SessionID: "s1", Text: "/wait"})

	// 调用方放弃读取后，生产者不能卡在错误片段或 Final 片段上
	time.Sleep(100 * time.Millisecond)
	var chunks []dispatch.Chunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}
	assert.LessOrEqual(t, len(chunks), 1)
}
