package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai/aitest"
)

func TestComposerRendersContextIntoSystemPrompt(t *testing.T) {
	c := NewComposer(aitest.Texts(), NewMemoryStore())

	messages, err := c.Messages(nil, "question", "alpha\n\nbeta")
	require.NoError(t, err)
	require.Len(t, messages, 2)

	call := aitest.Call{Messages: messages}
	texts := call.Texts()
	assert.Contains(t, texts[0], "If you don't know the answer, just say that you don't know")
	assert.True(t, len(texts[0]) > len("alpha\n\nbeta"))
	assert.Contains(t, texts[0], "concise as possible.\n\nalpha\n\nbeta")
	assert.Equal(t, "question", texts[1])
}

func TestComposerCustomPrompt(t *testing.T) {
	model := aitest.Texts("answer")
	store := NewMemoryStore()
	_, err := store.GetOrCreate(context.Background(), "s")
	require.NoError(t, err)

	c := NewComposer(model, store, WithAnswerPrompt("Context: {{.context}}"))
	got, err := c.Compose(context.Background(), "s", nil, "q", "<b>raw</b>")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	// 模板不做 HTML 转义
	assert.Equal(t, "Context: <b>raw</b>", model.Calls()[0].Texts()[0])
}

func TestComposerCommitFailureOnUnknownSession(t *testing.T) {
	c := NewComposer(aitest.Texts("answer"), NewMemoryStore())
	_, err := c.Compose(context.Background(), "ghost", nil, "q", "")
	assert.ErrorIs(t, err, ErrCompositionFailed)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateAnswered, stageErr.State)
}

func TestStageErrorMessage(t *testing.T) {
	err := stageErr(StageRetrieve, context.DeadlineExceeded)
	assert.Equal(t, "retrieval failed: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrRewriteFailed)
}
