// Package engage resolves an already-triggered action into a concrete
// engagement: it re-checks the probability gate with relevance applied,
// picks an action kind by weighted choice, and drives the generation, typo,
// and persistence side effects through caller-supplied collaborators.
package engage

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/quillpost/botengine/pkg/randutil"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/typo"
	"github.com/quillpost/botengine/pkg/types"
)

// Relevance boost tuning.
const (
	likeBonusFirst      = 1.5
	likeBonusAdditional = 0.2
	likeBonusCap        = 2.5
	defaultTopicWeight  = 0.25
	dislikeMultiplier   = 0.75
	boostFloor          = 0.1
)

// Resolution statuses.
const (
	StatusEngaged = "engaged"
	StatusIgnored = "ignored"
)

// Collaborators is the capability set a resolution needs. Every dispatch
// branch checks the callbacks it requires and panics when one is missing;
// wiring gaps are configuration bugs, not runtime conditions.
type Collaborators struct {
	Rand          *rand.Rand
	Generate      func(ctx context.Context, req textgen.Request) (string, error)
	CreateComment func(ctx context.Context, c types.Comment) (string, error)
	LikePost      func(ctx context.Context, postID, botID string) (bool, error)
}

// Context is the live state around the action being resolved.
type Context struct {
	Post        types.Post
	Parent      *types.Comment
	BotComments int // this bot's prior comments on the post
	BotReplies  int // this bot's prior replies in the parent's thread
	Thread      []types.ThreadEntry
	Path        []types.ThreadEntry
}

// Result reports what the resolution did.
type Result struct {
	Status             string
	Kind               string
	Reason             string
	CommentID          string
	Liked              bool
	FallbackToTopLevel bool
}

// Resolver applies the engagement decision procedure.
type Resolver struct {
	log *slog.Logger
}

// New creates a resolver.
func New(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log.With("component", "resolver")}
}

// Resolve runs the full decision for one pending action.
func (r *Resolver) Resolve(ctx context.Context, action types.ScheduledAction, bot types.BotProfile, ec Context, collab Collaborators) (Result, error) {
	if collab.Rand == nil {
		panic("engage: Collaborators.Rand is required")
	}
	bot = types.NormalizeBot(bot)

	trigger := action.Metadata[types.MetaTrigger]
	replyTriggered := trigger == types.TriggerDirectReply || trigger == types.TriggerMention

	baseProb := bot.Behavior.BaseResponseProbability
	if replyTriggered {
		baseProb = bot.Behavior.ReplyResponseProbability
	}

	boost := RelevanceBoost(bot, contextText(ec))
	effective := randutil.Clamp(baseProb*boost, 0, 1)
	if draw := collab.Rand.Float64(); draw > effective {
		return Result{Status: StatusIgnored, Reason: "probability_gate"}, nil
	}

	// Reply triggers carry their kind already; weighted choice applies only
	// to tick-triggered actions.
	if replyTriggered {
		return r.reply(ctx, bot, ec, collab)
	}

	weights := r.allowedWeights(bot, ec)
	kind, ok := randutil.Weighted(collab.Rand, weights)
	if !ok || kind == types.WeightIgnore {
		return Result{Status: StatusIgnored, Reason: "weighted_ignore"}, nil
	}

	return r.dispatch(ctx, kind, bot, ec, collab)
}

// allowedWeights zeroes out kinds the live context cannot support.
func (r *Resolver) allowedWeights(bot types.BotProfile, ec Context) map[string]float64 {
	postCapReached := bot.Behavior.MaxCommentsPerPost > 0 && ec.BotComments >= bot.Behavior.MaxCommentsPerPost
	threadCapReached := bot.Behavior.MaxRepliesPerThread > 0 && ec.BotReplies >= bot.Behavior.MaxRepliesPerThread
	noPost := ec.Post.ID == ""

	out := make(map[string]float64, len(bot.Behavior.ActionWeights))
	for k, w := range bot.Behavior.ActionWeights {
		switch k {
		case types.WeightCommentOnPost:
			if postCapReached || noPost {
				continue
			}
		case types.WeightReplyToComment:
			if threadCapReached || ec.Parent == nil || noPost {
				continue
			}
		case types.WeightLikeAndComment:
			if noPost {
				continue
			}
		}
		out[k] = w
	}
	return out
}

func (r *Resolver) dispatch(ctx context.Context, kind string, bot types.BotProfile, ec Context, collab Collaborators) (Result, error) {
	switch kind {
	case types.WeightCommentOnPost:
		return r.comment(ctx, bot, ec, collab, types.ModeTopLevel, false)

	case types.WeightReplyToComment:
		return r.reply(ctx, bot, ec, collab)

	case types.WeightLikeAndComment:
		liked, err := r.like(ctx, bot, ec, collab)
		if err != nil {
			return Result{}, err
		}
		res, err := r.commentOrReply(ctx, bot, ec, collab)
		if err != nil {
			return Result{}, err
		}
		if res.Status == StatusIgnored && liked {
			// No comment capacity left; the like alone is the engagement.
			res = Result{Status: StatusEngaged, Kind: types.WeightLikeAndComment, Reason: "like_only"}
		}
		res.Liked = liked
		return res, nil

	case types.WeightLikePostOnly:
		liked, err := r.like(ctx, bot, ec, collab)
		if err != nil {
			return Result{}, err
		}
		if !liked {
			return Result{Status: StatusIgnored, Kind: kind, Reason: "already_liked"}, nil
		}
		return Result{Status: StatusEngaged, Kind: kind, Liked: true}, nil

	default:
		return Result{Status: StatusIgnored, Reason: "weighted_ignore"}, nil
	}
}

// commentOrReply prefers a reply when a parent target exists and the thread
// cap allows it, otherwise attempts a top-level comment.
func (r *Resolver) commentOrReply(ctx context.Context, bot types.BotProfile, ec Context, collab Collaborators) (Result, error) {
	threadCapReached := bot.Behavior.MaxRepliesPerThread > 0 && ec.BotReplies >= bot.Behavior.MaxRepliesPerThread
	if ec.Parent != nil && !threadCapReached {
		return r.comment(ctx, bot, ec, collab, types.ModeReply, false)
	}
	postCapReached := bot.Behavior.MaxCommentsPerPost > 0 && ec.BotComments >= bot.Behavior.MaxCommentsPerPost
	if !postCapReached {
		return r.comment(ctx, bot, ec, collab, types.ModeTopLevel, false)
	}
	return Result{Status: StatusIgnored, Reason: "no_comment_capacity"}, nil
}

// reply generates a threaded reply, falling back to a top-level comment
// when the target or thread capacity is gone.
func (r *Resolver) reply(ctx context.Context, bot types.BotProfile, ec Context, collab Collaborators) (Result, error) {
	threadCapReached := bot.Behavior.MaxRepliesPerThread > 0 && ec.BotReplies >= bot.Behavior.MaxRepliesPerThread
	if ec.Parent != nil && !threadCapReached {
		return r.comment(ctx, bot, ec, collab, types.ModeReply, false)
	}

	postCapReached := bot.Behavior.MaxCommentsPerPost > 0 && ec.BotComments >= bot.Behavior.MaxCommentsPerPost
	if postCapReached {
		return Result{Status: StatusIgnored, Reason: "no_comment_capacity"}, nil
	}
	r.log.Debug("reply target unavailable, falling back to top level", "bot", bot.ID, "post", ec.Post.ID)
	return r.comment(ctx, bot, ec, collab, types.ModeTopLevel, true)
}

// comment generates, humanizes, and persists one comment.
func (r *Resolver) comment(ctx context.Context, bot types.BotProfile, ec Context, collab Collaborators, mode types.GenerationMode, fallback bool) (Result, error) {
	if collab.Generate == nil {
		panic("engage: Collaborators.Generate is required for comment dispatch")
	}
	if collab.CreateComment == nil {
		panic("engage: Collaborators.CreateComment is required for comment dispatch")
	}

	req := textgen.Request{
		Persona: bot,
		Mode:    mode,
		Post:    ec.Post,
		Thread:  ec.Thread,
		Path:    ec.Path,
	}
	if mode == types.ModeReply {
		req.Parent = ec.Parent
	}
	text, err := collab.Generate(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("generate %s comment: %w", strings.ToLower(string(mode)), err)
	}
	text = typo.Humanize(collab.Rand, text, bot.Behavior.TypoChance, bot.Behavior.MaxTyposPerComment)

	c := types.Comment{
		PostID:      ec.Post.ID,
		Content:     text,
		AuthorID:    bot.ID,
		AuthorName:  bot.DisplayName,
		AuthorIsBot: true,
	}
	if mode == types.ModeReply && ec.Parent != nil {
		c.ParentCommentID = ec.Parent.ID
		c.ThreadRootCommentID = types.ThreadRootOf(*ec.Parent)
	}
	id, err := collab.CreateComment(ctx, c)
	if err != nil {
		return Result{}, fmt.Errorf("persist comment: %w", err)
	}

	kind := types.WeightCommentOnPost
	if mode == types.ModeReply {
		kind = types.WeightReplyToComment
	}
	return Result{Status: StatusEngaged, Kind: kind, CommentID: id, FallbackToTopLevel: fallback}, nil
}

func (r *Resolver) like(ctx context.Context, bot types.BotProfile, ec Context, collab Collaborators) (bool, error) {
	if collab.LikePost == nil {
		panic("engage: Collaborators.LikePost is required for like dispatch")
	}
	liked, err := collab.LikePost(ctx, ec.Post.ID, bot.ID)
	if err != nil {
		return false, fmt.Errorf("like post: %w", err)
	}
	return liked, nil
}

// RelevanceBoost scores how strongly a persona's affinities match the given
// context text. Like matches apply one multiplicative bonus growing with
// the match count, topic weights add, and each dislike match shrinks the
// result.
func RelevanceBoost(bot types.BotProfile, text string) float64 {
	text = strings.ToLower(text)
	boost := 1.0

	likeMatches := 0
	for _, like := range bot.Likes {
		if like != "" && strings.Contains(text, strings.ToLower(like)) {
			likeMatches++
		}
	}
	if likeMatches > 0 {
		bonus := likeBonusFirst + likeBonusAdditional*float64(likeMatches-1)
		if bonus > likeBonusCap {
			bonus = likeBonusCap
		}
		boost *= bonus
	}

	for topic, weight := range bot.TopicPreferences {
		if topic == "" || !strings.Contains(text, strings.ToLower(topic)) {
			continue
		}
		if weight <= 0 {
			weight = defaultTopicWeight
		}
		boost += weight
	}

	for _, dislike := range bot.Dislikes {
		if dislike != "" && strings.Contains(text, strings.ToLower(dislike)) {
			boost *= dislikeMultiplier
		}
	}

	if boost < boostFloor {
		boost = boostFloor
	}
	return boost
}

func contextText(ec Context) string {
	parts := []string{ec.Post.Title, ec.Post.Content, ec.Post.Summary, strings.Join(ec.Post.Tags, " ")}
	if ec.Parent != nil {
		parts = append(parts, ec.Parent.Content)
	}
	for _, e := range ec.Thread {
		parts = append(parts, e.Content)
	}
	return strings.Join(parts, " ")
}
