// Package scheduler decides, per bot and per tick, whether to enqueue a new
// engagement action. Decisions are probabilistic but fully driven by the
// injected random source, so tests run deterministically.
package scheduler

import (
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/quillpost/botengine/pkg/randutil"
	"github.com/quillpost/botengine/pkg/types"
)

// CooldownWindow is the minimum gap between two scheduled actions for one
// bot, applied uniformly across action kinds.
const CooldownWindow = 15 * time.Minute

// Default topic-preference weight for candidate scoring when the profile
// stores a non-positive weight.
const defaultTopicScoreWeight = 0.5

// Evaluation statuses.
const (
	StatusScheduled     = "scheduled"
	StatusIgnored       = "ignored"
	StatusCooldown      = "cooldown"
	StatusOutsideWindow = "outside_window"
)

// PostCandidate pairs a post with this bot's prior comment count on it.
type PostCandidate struct {
	Post        types.Post
	BotComments int
}

// ReplyTrigger pairs a notification with this bot's prior reply count in
// the notification's thread.
type ReplyTrigger struct {
	Notification  types.Notification
	ThreadReplies int
}

// Input is everything one evaluateTick call looks at. Global is shared
// across all bots evaluated within one tick invocation and is mutated in
// place when a top-level comment is scheduled.
type Input struct {
	Bot      types.BotProfile
	Now      time.Time
	Posts    []PostCandidate
	Triggers []ReplyTrigger
	Runtime  types.RuntimeState
	Global   *types.GlobalCommentState
}

// Result reports the tick decision. Action and Runtime are set only when
// Status is StatusScheduled; NotificationID names the consumed trigger on
// the reply path.
type Result struct {
	Status         string
	Reason         string
	Action         *types.ScheduledAction
	Runtime        *types.RuntimeState
	NotificationID string
}

// Scheduler evaluates tick decisions for the whole roster.
type Scheduler struct {
	rng *rand.Rand
	log *slog.Logger
}

// New creates a scheduler around the given random source.
func New(rng *rand.Rand, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{rng: rng, log: log.With("component", "scheduler")}
}

// EvaluateTick runs the per-bot tick decision.
func (s *Scheduler) EvaluateTick(in Input) Result {
	ticksEvaluated.Inc()
	res := s.evaluate(in)
	tickResults.WithLabelValues(res.Status).Inc()
	if res.Status == StatusScheduled {
		actionsScheduled.WithLabelValues(string(res.Action.Kind)).Inc()
		s.log.Debug("action scheduled",
			"bot", in.Bot.ID,
			"kind", res.Action.Kind,
			"post", res.Action.PostID,
			"at_ms", res.Action.ScheduledAtMs)
	}
	return res
}

func (s *Scheduler) evaluate(in Input) Result {
	bot := types.NormalizeBot(in.Bot)
	nowMs := in.Now.UnixMilli()

	if w := bot.Behavior.ActiveWindow; w != nil {
		open, err := randutil.InWindow(in.Now, w.Start, w.End, w.Timezone)
		if err != nil {
			s.log.Warn("bad active window, treating as open", "bot", bot.ID, "err", err)
		} else if !open {
			return Result{Status: StatusOutsideWindow}
		}
	}

	if randutil.InCooldown(nowMs, in.Runtime.LastActionScheduledAtMs, CooldownWindow) {
		return Result{Status: StatusCooldown}
	}

	if trigger, ok := s.pickReplyTrigger(bot, in.Triggers); ok {
		return s.scheduleReply(bot, in, trigger, nowMs)
	}
	return s.scheduleTopLevel(bot, in, nowMs)
}

// pickReplyTrigger returns the earliest notification eligible for the reply
// fast path: direct replies to the bot's comments always qualify, mentions
// of the bot's handle qualify, and the per-thread reply cap filters both.
func (s *Scheduler) pickReplyTrigger(bot types.BotProfile, triggers []ReplyTrigger) (ReplyTrigger, bool) {
	eligible := make([]ReplyTrigger, 0, len(triggers))
	for _, t := range triggers {
		if t.Notification.Handled || t.Notification.CommentID == "" {
			continue
		}
		if !isDirectReply(bot, t.Notification) && !mentionsBot(bot, t.Notification.Text) {
			continue
		}
		if cap := bot.Behavior.MaxRepliesPerThread; cap > 0 && t.ThreadReplies >= cap {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return ReplyTrigger{}, false
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Notification.CreatedAt.Before(eligible[j].Notification.CreatedAt)
	})
	return eligible[0], true
}

func isDirectReply(bot types.BotProfile, n types.Notification) bool {
	return n.ParentAuthorID == bot.ID
}

// mentionsBot reports whether text mentions the bot's handle, the display
// name lowercased with spaces stripped.
func mentionsBot(bot types.BotProfile, text string) bool {
	handle := Handle(bot.DisplayName)
	if handle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), "@"+handle)
}

// Handle derives the mention handle from a display name.
func Handle(displayName string) string {
	return strings.ReplaceAll(strings.ToLower(displayName), " ", "")
}

// scheduleReply builds a REPLY_TO_COMMENT action for a reply trigger. The
// fast path bypasses relevance and weighted choice; only the probability
// gate applies here, the cooldown and thread cap having been checked.
func (s *Scheduler) scheduleReply(bot types.BotProfile, in Input, t ReplyTrigger, nowMs int64) Result {
	if r := s.rng.Float64(); r > bot.Behavior.ReplyResponseProbability {
		return Result{Status: StatusIgnored, Reason: "probability_gate", NotificationID: t.Notification.ID}
	}

	delay := randutil.DelayWithin(s.rng, bot.Behavior.ReplyDelay.MinMinutes, bot.Behavior.ReplyDelay.MaxMinutes)
	trigger := types.TriggerDirectReply
	if !isDirectReply(bot, t.Notification) {
		trigger = types.TriggerMention
	}
	action := &types.ScheduledAction{
		Kind:                types.ActionReplyToComment,
		BotID:               bot.ID,
		PostID:              t.Notification.PostID,
		ParentCommentID:     t.Notification.CommentID,
		ThreadRootCommentID: t.Notification.ThreadRootCommentID,
		ScheduledAtMs:       nowMs + delay.Milliseconds(),
		Metadata:            map[string]string{types.MetaTrigger: trigger},
	}

	runtime := in.Runtime
	runtime.LastActionScheduledAtMs = action.ScheduledAtMs
	return Result{
		Status:         StatusScheduled,
		Action:         action,
		Runtime:        &runtime,
		NotificationID: t.Notification.ID,
	}
}

// scheduleTopLevel runs candidate selection, quota checks, the probability
// gate, and weighted action choice for the tick path.
func (s *Scheduler) scheduleTopLevel(bot types.BotProfile, in Input, nowMs int64) Result {
	candidate, ok := s.pickPost(bot, in.Posts)
	if !ok {
		return Result{Status: StatusIgnored, Reason: "no_candidate_post"}
	}

	runtime := in.Runtime
	rollBotWindows(&runtime.TopLevel, nowMs)
	global := types.NormalizeGlobal(*in.Global)
	rollGlobalWindows(&global, nowMs)
	*in.Global = global

	commentAllowed := commentQuotaOpen(bot, candidate, runtime, global)

	if r := s.rng.Float64(); r > bot.Behavior.BaseResponseProbability {
		return Result{Status: StatusIgnored, Reason: "probability_gate"}
	}

	weights := allowedWeights(bot.Behavior.ActionWeights, commentAllowed)
	kind, ok := randutil.Weighted(s.rng, weights)
	if !ok || kind == types.WeightIgnore {
		return Result{Status: StatusIgnored, Reason: "weighted_ignore"}
	}

	action := &types.ScheduledAction{
		BotID:    bot.ID,
		PostID:   candidate.Post.ID,
		Metadata: map[string]string{types.MetaTrigger: types.TriggerTick},
	}
	isComment := false
	switch kind {
	case types.WeightCommentOnPost:
		action.Kind = types.ActionCommentOnPost
		isComment = true
	case types.WeightLikeAndComment:
		action.Kind = types.ActionCommentOnPost
		action.Metadata[types.MetaLikeFirst] = "true"
		isComment = true
	case types.WeightLikePostOnly:
		action.Kind = types.ActionLikePost
	default:
		return Result{Status: StatusIgnored, Reason: "weighted_ignore"}
	}

	delay := randutil.DelayWithin(s.rng, bot.Behavior.PostDelay.MinMinutes, bot.Behavior.PostDelay.MaxMinutes)
	action.ScheduledAtMs = nowMs + delay.Milliseconds()

	runtime.LastActionScheduledAtMs = action.ScheduledAtMs
	if isComment {
		runtime.TopLevel.HourCount++
		runtime.TopLevel.DayCount++
		runtime.TopLevel.LastTopLevelCommentAtMs = nowMs
		in.Global.CommentsScheduledThisTick++
		in.Global.HourCount++
		in.Global.DayCount++
	}
	return Result{Status: StatusScheduled, Action: action, Runtime: &runtime}
}

// commentQuotaOpen checks every comment cap in order: per-post cap, bot
// hour/day rolling caps, then global per-tick and per-hour caps. A closed
// quota removes the comment kinds but leaves like-only weights in play.
func commentQuotaOpen(bot types.BotProfile, c PostCandidate, runtime types.RuntimeState, global types.GlobalCommentState) bool {
	if cap := bot.Behavior.MaxCommentsPerPost; cap > 0 && c.BotComments >= cap {
		return false
	}
	if limits := bot.Behavior.CommentLimits; limits != nil {
		if limits.PerHour > 0 && runtime.TopLevel.HourCount >= limits.PerHour {
			return false
		}
		if limits.PerDay > 0 && runtime.TopLevel.DayCount >= limits.PerDay {
			return false
		}
		if limits.PerPost > 0 && c.BotComments >= limits.PerPost {
			return false
		}
	}
	if global.CommentsScheduledThisTick >= global.PerTickLimit {
		return false
	}
	if global.HourCount >= global.PerHourLimit {
		return false
	}
	return true
}

// allowedWeights filters the profile's weight map down to kinds the tick
// path can execute. Replies never come from this path, so replyToComment is
// always removed here.
func allowedWeights(weights map[string]float64, commentAllowed bool) map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, w := range weights {
		switch k {
		case types.WeightReplyToComment:
			continue
		case types.WeightCommentOnPost, types.WeightLikeAndComment:
			if !commentAllowed {
				continue
			}
		}
		out[k] = w
	}
	return out
}

// pickPost scores candidates by affinity and returns the best. With no
// positive score the eligible set is shuffled and the first taken, so cold
// bots still engage occasionally.
func (s *Scheduler) pickPost(bot types.BotProfile, posts []PostCandidate) (PostCandidate, bool) {
	eligible := make([]PostCandidate, 0, len(posts))
	for _, c := range posts {
		if c.Post.Published {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return PostCandidate{}, false
	}

	type scored struct {
		c     PostCandidate
		score float64
	}
	ranked := make([]scored, 0, len(eligible))
	best := 0.0
	for _, c := range eligible {
		sc := scorePost(bot, c.Post)
		ranked = append(ranked, scored{c: c, score: sc})
		if sc > best {
			best = sc
		}
	}

	if best <= 0 {
		s.rng.Shuffle(len(eligible), func(i, j int) {
			eligible[i], eligible[j] = eligible[j], eligible[i]
		})
		return eligible[0], true
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return ranked[0].c, true
}

// scorePost counts case-insensitive affinity matches against the post's
// combined text: likes weigh 1 each, topic preferences their configured
// weight.
func scorePost(bot types.BotProfile, p types.Post) float64 {
	text := strings.ToLower(p.Title + " " + p.Content + " " + p.Summary + " " + strings.Join(p.Tags, " "))
	score := 0.0
	for _, like := range bot.Likes {
		if like != "" && strings.Contains(text, strings.ToLower(like)) {
			score++
		}
	}
	for topic, weight := range bot.TopicPreferences {
		if topic == "" || !strings.Contains(text, strings.ToLower(topic)) {
			continue
		}
		if weight <= 0 {
			weight = defaultTopicScoreWeight
		}
		score += weight
	}
	return score
}
