package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai/aitest"
)

func TestRetrieveKeepsBackendOrder(t *testing.T) {
	store := &aitest.StaticStore{Docs: []schema.Document{
		{PageContent: "c", Score: 0.9},
		{PageContent: "a", Score: 0.1},
		{PageContent: "b", Score: 0.5},
	}}
	r := NewRetriever(store)

	fragments, err := r.Retrieve(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, FragmentTexts(fragments))
	assert.Equal(t, float32(0.9), fragments[0].Score)
	assert.Equal(t, []string{"query"}, store.Queries())
}

func TestRetrieveRespectsK(t *testing.T) {
	store := aitest.NewStaticStore("a", "b", "c", "d")
	fragments, err := NewRetriever(store).Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
	assert.Equal(t, []int{2}, store.Ks())
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	fragments, err := NewRetriever(aitest.NewStaticStore()).Retrieve(context.Background(), "q", 4)
	require.NoError(t, err)
	assert.NotNil(t, fragments)
	assert.Empty(t, fragments)
	assert.Equal(t, "", FormatContext(fragments))
}

func TestRetrieveInvalidK(t *testing.T) {
	store := aitest.NewStaticStore("a")
	_, err := NewRetriever(store).Retrieve(context.Background(), "q", 0)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.Empty(t, store.Queries())
}

func TestRetrieveBackendFailure(t *testing.T) {
	boom := errors.New("index offline")
	store := &aitest.StaticStore{Err: boom}
	_, err := NewRetriever(store).Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, boom)
}

func TestFormatContext(t *testing.T) {
	fragments := []Fragment{{Text: "first"}, {Text: "second"}, {Text: "third"}}
	assert.Equal(t, "first\n\nsecond\n\nthird", FormatContext(fragments))
}

func TestScoreOrderBetter(t *testing.T) {
	assert.True(t, DistanceAscending.Better(0.1, 0.2))
	assert.False(t, DistanceAscending.Better(0.3, 0.2))
	assert.True(t, SimilarityDescending.Better(0.9, 0.2))

	r := NewRetriever(aitest.NewStaticStore(), WithScoreOrder(SimilarityDescending))
	assert.Equal(t, SimilarityDescending, r.ScoreOrder())
	assert.Equal(t, DistanceAscending, NewRetriever(nil).ScoreOrder())
}
