package planner

import (
	"math/rand"
	"testing"

	ailibmodel "github.com/cpunion/ailib/adk/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	adkmodel "google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/quillpost/botengine/pkg/types"
)

func mockPlanner(t *testing.T, responseText string) *ADK {
	t.Helper()
	mock := ailibmodel.NewMockLLM(&adkmodel.LLMResponse{
		Content: &genai.Content{
			Role:  "model",
			Parts: []*genai.Part{{Text: responseText}},
		},
	})
	p, err := NewADK(mock, nil)
	require.NoError(t, err)
	return p
}

func planRequest() Request {
	return Request{
		Post: types.Post{ID: "p1", Title: "Raft in practice"},
		TopLevel: []types.Comment{
			{ID: "c1", AuthorName: "Ada", Content: "Leases are fine."},
			{ID: "c2", AuthorName: "Ben", Content: "What about clock skew?"},
		},
		Persona: types.BotProfile{ID: "bot-a", DisplayName: "Cara"},
	}
}

func TestADKPlanReply(t *testing.T) {
	p := mockPlanner(t, `{"mode": "REPLY", "target_comment_id": "c2", "reason": "skew question overlaps interests"}`)

	rec, err := p.Plan(t.Context(), planRequest())
	require.NoError(t, err)
	assert.Equal(t, types.ModeReply, rec.Mode)
	assert.Equal(t, "c2", rec.TargetCommentID)
}

func TestADKPlanRejectsUnknownTarget(t *testing.T) {
	p := mockPlanner(t, `{"mode": "REPLY", "target_comment_id": "c99", "reason": "made up"}`)

	rec, err := p.Plan(t.Context(), planRequest())
	require.NoError(t, err)
	assert.Equal(t, types.ModeTopLevel, rec.Mode)
	assert.Empty(t, rec.TargetCommentID)
	assert.Equal(t, "invalid_target", rec.Reason)
}

func TestADKPlanMalformedOutputFallsBack(t *testing.T) {
	p := mockPlanner(t, "I think replying to the second comment would be nice.")

	rec, err := p.Plan(t.Context(), planRequest())
	require.NoError(t, err)
	assert.Equal(t, types.ModeTopLevel, rec.Mode)
	assert.Equal(t, "planner_output_unparseable", rec.Reason)
}

func TestADKPlanToleratesCodeFence(t *testing.T) {
	p := mockPlanner(t, "```json\n{\"mode\": \"reply\", \"target_comment_id\": \"c1\", \"reason\": \"ok\"}\n```")

	rec, err := p.Plan(t.Context(), planRequest())
	require.NoError(t, err)
	assert.Equal(t, types.ModeReply, rec.Mode)
	assert.Equal(t, "c1", rec.TargetCommentID)
}

func TestADKPlanEmptyCommentList(t *testing.T) {
	p := mockPlanner(t, `{"mode": "REPLY", "target_comment_id": "c1"}`)

	req := planRequest()
	req.TopLevel = nil
	rec, err := p.Plan(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ModeTopLevel, rec.Mode)
	assert.Equal(t, "no_existing_threads", rec.Reason)
}

func TestHeuristicAffinityMatch(t *testing.T) {
	h := NewHeuristic(rand.New(rand.NewSource(1)))
	req := planRequest()
	req.Persona.Likes = []string{"clock skew"}

	rec, err := h.Plan(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ModeReply, rec.Mode)
	assert.Equal(t, "c2", rec.TargetCommentID)
	assert.Equal(t, "affinity_match", rec.Reason)
}

func TestHeuristicEmptyPostStartsThread(t *testing.T) {
	h := NewHeuristic(rand.New(rand.NewSource(1)))
	req := planRequest()
	req.TopLevel = nil

	rec, err := h.Plan(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, types.ModeTopLevel, rec.Mode)
}

func TestHeuristicTargetsAreValid(t *testing.T) {
	h := NewHeuristic(rand.New(rand.NewSource(42)))
	req := planRequest()

	for i := 0; i < 100; i++ {
		rec, err := h.Plan(t.Context(), req)
		require.NoError(t, err)
		if rec.Mode == types.ModeReply {
			assert.Contains(t, []string{"c1", "c2"}, rec.TargetCommentID)
		} else {
			assert.Empty(t, rec.TargetCommentID)
		}
	}
}
