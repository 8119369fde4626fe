// Package planner is the decision-assist collaborator: given a post and its
// existing top-level comments, it recommends whether a bot should start a
// new thread or reply to an existing comment. The ADK implementation asks
// an LLM agent; the heuristic implementation is deterministic given its
// random source and serves offline simulation and fallback.
package planner

import (
	"context"

	"github.com/quillpost/botengine/pkg/types"
)

// Request is the planning input. TopLevel is ordered as stored, oldest
// first.
type Request struct {
	Post     types.Post
	TopLevel []types.Comment
	Persona  types.BotProfile
	Intent   string
}

// Recommendation is the planning output. TargetCommentID is empty for
// TOP_LEVEL and always one of the supplied comment ids for REPLY.
type Recommendation struct {
	Mode            types.GenerationMode
	TargetCommentID string
	Reason          string
}

// Planner recommends an engagement mode for a post.
type Planner interface {
	Plan(ctx context.Context, req Request) (Recommendation, error)
}

// Sanitize forces a recommendation back into the contract: unknown modes
// become TOP_LEVEL, and a REPLY target outside the candidate set is
// rejected rather than trusted.
func Sanitize(rec Recommendation, candidates []types.Comment) Recommendation {
	if rec.Mode != types.ModeReply {
		rec.Mode = types.ModeTopLevel
		rec.TargetCommentID = ""
		return rec
	}
	for _, c := range candidates {
		if c.ID == rec.TargetCommentID {
			return rec
		}
	}
	return Recommendation{Mode: types.ModeTopLevel, Reason: "invalid_target"}
}
