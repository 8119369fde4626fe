package types

// Documented defaults applied at the store boundary. Every component reads
// normalized structs, so optional-field fallbacks live here and nowhere else.
const (
	DefaultBaseResponseProbability  = 0.3
	DefaultReplyResponseProbability = 0.6

	DefaultPostDelayMin  = 5
	DefaultPostDelayMax  = 90
	DefaultReplyDelayMin = 2
	DefaultReplyDelayMax = 30

	DefaultGlobalPerTickLimit = 3
	DefaultGlobalPerHourLimit = 12
)

// DefaultActionWeights returns the weight map used when a profile carries none.
func DefaultActionWeights() map[string]float64 {
	return map[string]float64{
		WeightCommentOnPost:  0.35,
		WeightReplyToComment: 0.25,
		WeightLikePostOnly:   0.2,
		WeightLikeAndComment: 0.1,
		WeightIgnore:         0.1,
	}
}

// NormalizeBehavior fills zero-valued behavior fields with defaults and
// clamps probabilities into [0,1].
func NormalizeBehavior(b BehaviorConfig) BehaviorConfig {
	if b.BaseResponseProbability <= 0 {
		b.BaseResponseProbability = DefaultBaseResponseProbability
	}
	if b.ReplyResponseProbability <= 0 {
		b.ReplyResponseProbability = DefaultReplyResponseProbability
	}
	b.BaseResponseProbability = clamp01(b.BaseResponseProbability)
	b.ReplyResponseProbability = clamp01(b.ReplyResponseProbability)

	if b.PostDelay.MinMinutes <= 0 && b.PostDelay.MaxMinutes <= 0 {
		b.PostDelay = DelayRange{MinMinutes: DefaultPostDelayMin, MaxMinutes: DefaultPostDelayMax}
	}
	if b.ReplyDelay.MinMinutes <= 0 && b.ReplyDelay.MaxMinutes <= 0 {
		b.ReplyDelay = DelayRange{MinMinutes: DefaultReplyDelayMin, MaxMinutes: DefaultReplyDelayMax}
	}

	if len(b.ActionWeights) == 0 {
		b.ActionWeights = DefaultActionWeights()
	}

	b.TypoChance = clamp01(b.TypoChance)
	if b.MaxTyposPerComment < 0 {
		b.MaxTyposPerComment = 0
	}
	return b
}

// NormalizeBot returns the profile with a normalized behavior config.
func NormalizeBot(p BotProfile) BotProfile {
	p.Behavior = NormalizeBehavior(p.Behavior)
	return p
}

// NormalizeRuntimeState returns a usable runtime state for a bot, creating
// an empty one when the stored document is missing.
func NormalizeRuntimeState(st RuntimeState, botID string) RuntimeState {
	if st.BotID == "" {
		st.BotID = botID
	}
	return st
}

// NormalizeGlobal fills zero-valued global limits with defaults.
func NormalizeGlobal(g GlobalCommentState) GlobalCommentState {
	if g.PerTickLimit <= 0 {
		g.PerTickLimit = DefaultGlobalPerTickLimit
	}
	if g.PerHourLimit <= 0 {
		g.PerHourLimit = DefaultGlobalPerHourLimit
	}
	return g
}

// ThreadRootOf resolves the thread root id for a comment: its own root
// pointer when set, otherwise the comment itself is the root.
func ThreadRootOf(c Comment) string {
	if c.ThreadRootCommentID != "" {
		return c.ThreadRootCommentID
	}
	return c.ID
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
