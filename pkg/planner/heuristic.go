package planner

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/quillpost/botengine/pkg/types"
)

// Reply-lean tuning for the heuristic planner. The more discussion a post
// already has, the more likely a bot joins a thread instead of opening one.
const (
	replyChancePerComment = 0.15
	replyChanceCap        = 0.6
)

// Heuristic plans without a model: affinity matches pull the bot into the
// matching thread, otherwise a busy post nudges it toward replying.
type Heuristic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHeuristic creates a heuristic planner around the given random source.
func NewHeuristic(rng *rand.Rand) *Heuristic {
	return &Heuristic{rng: rng}
}

func (h *Heuristic) Plan(_ context.Context, req Request) (Recommendation, error) {
	if len(req.TopLevel) == 0 {
		return Recommendation{Mode: types.ModeTopLevel, Reason: "no_existing_threads"}, nil
	}

	if best, ok := bestAffinityMatch(req.Persona, req.TopLevel); ok {
		return Sanitize(Recommendation{
			Mode:            types.ModeReply,
			TargetCommentID: best,
			Reason:          "affinity_match",
		}, req.TopLevel), nil
	}

	chance := replyChancePerComment * float64(len(req.TopLevel))
	if chance > replyChanceCap {
		chance = replyChanceCap
	}
	h.mu.Lock()
	draw := h.rng.Float64()
	pick := h.rng.Intn(len(req.TopLevel))
	h.mu.Unlock()

	if draw < chance {
		return Sanitize(Recommendation{
			Mode:            types.ModeReply,
			TargetCommentID: req.TopLevel[pick].ID,
			Reason:          "join_discussion",
		}, req.TopLevel), nil
	}
	return Recommendation{Mode: types.ModeTopLevel, Reason: "start_thread"}, nil
}

// bestAffinityMatch returns the comment with the most persona-like matches,
// favoring the earliest on ties.
func bestAffinityMatch(bot types.BotProfile, comments []types.Comment) (string, bool) {
	bestID := ""
	bestScore := 0
	for _, c := range comments {
		text := strings.ToLower(c.Content)
		score := 0
		for _, like := range bot.Likes {
			if like != "" && strings.Contains(text, strings.ToLower(like)) {
				score++
			}
		}
		for topic := range bot.TopicPreferences {
			if topic != "" && strings.Contains(text, strings.ToLower(topic)) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestID = c.ID
		}
	}
	return bestID, bestScore > 0
}
