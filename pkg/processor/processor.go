// Package processor consumes due scheduled actions in order, resolves each
// into a concrete engagement, and manages retry, backoff, and cooldown
// bookkeeping. Actions run strictly sequentially within a batch and each
// state transition commits immediately, so interrupted batches resume
// safely.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/quillpost/botengine/pkg/planner"
	"github.com/quillpost/botengine/pkg/randutil"
	"github.com/quillpost/botengine/pkg/store"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/thread"
	"github.com/quillpost/botengine/pkg/typo"
	"github.com/quillpost/botengine/pkg/types"
)

// Processing constants.
const (
	// EngagementCooldown is the quiet period after a bot engages, distinct
	// from the scheduler's tick cooldown.
	EngagementCooldown = 30 * time.Minute

	// unpublishedRetryDelay reschedules actions whose post exists but is
	// not published yet.
	unpublishedRetryDelay = 10 * time.Minute

	// loopGuardThreshold caps a bot's replies under another bot in one
	// thread on the reply-triggered path.
	loopGuardThreshold = 2

	threadFetchLimit   = 200
	topLevelFetchLimit = 50

	defaultBotCacheSize = 256
	defaultBotCacheTTL  = 5 * time.Minute
)

// Stats aggregates one processing batch for observability.
type Stats struct {
	Total       int
	Engaged     int
	Ignored     int
	Cooldown    int
	Rescheduled int
	Deleted     int
	Errors      int
	Likes       int
}

// Outcomes of a single action.
const (
	outcomeEngaged     = "engaged"
	outcomeIgnored     = "ignored"
	outcomeCooldown    = "cooldown"
	outcomeRescheduled = "rescheduled"
	outcomeDeleted     = "deleted"
	outcomeError       = "error"
)

// Config wires a Processor. Store and Generator are required; Planner is
// optional and its absence always resolves TOP_LEVEL mode.
type Config struct {
	Store     store.Store
	Generator textgen.Generator
	Planner   planner.Planner
	Rand      *rand.Rand
	Log       *slog.Logger

	// GenerationRate throttles generation calls; zero means unlimited.
	GenerationRate rate.Limit
	BotCacheTTL    time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Processor is the batch consumer of due scheduled actions.
type Processor struct {
	store    store.Store
	gen      textgen.Generator
	plan     planner.Planner
	rng      *rand.Rand
	log      *slog.Logger
	now      func() time.Time
	limiter  *rate.Limiter
	botCache *expirable.LRU[string, types.BotProfile]
}

// New creates a processor.
func New(cfg Config) *Processor {
	if cfg.Store == nil {
		panic("processor: Config.Store is required")
	}
	if cfg.Generator == nil {
		panic("processor: Config.Generator is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ttl := cfg.BotCacheTTL
	if ttl <= 0 {
		ttl = defaultBotCacheTTL
	}
	var limiter *rate.Limiter
	if cfg.GenerationRate > 0 {
		limiter = rate.NewLimiter(cfg.GenerationRate, 1)
	}
	return &Processor{
		store:    cfg.Store,
		gen:      cfg.Generator,
		plan:     cfg.Planner,
		rng:      rng,
		log:      log.With("component", "processor"),
		now:      now,
		limiter:  limiter,
		botCache: expirable.NewLRU[string, types.BotProfile](defaultBotCacheSize, nil, ttl),
	}
}

// ProcessDueActions fetches up to limit due actions and processes them
// strictly in order. Per-action failures convert to backoff decisions and
// never abort the batch.
func (p *Processor) ProcessDueActions(ctx context.Context, limit int) (Stats, error) {
	now := p.now()
	due, err := p.store.DueActions(ctx, now.UnixMilli(), limit)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch due actions: %w", err)
	}

	var stats Stats
	for _, action := range due {
		stats.Total++
		outcome, liked := p.processOne(ctx, action, now)
		actionsProcessed.WithLabelValues(outcome).Inc()
		if liked {
			stats.Likes++
		}
		switch outcome {
		case outcomeEngaged:
			stats.Engaged++
		case outcomeIgnored:
			stats.Ignored++
		case outcomeCooldown:
			stats.Cooldown++
		case outcomeRescheduled:
			stats.Rescheduled++
		case outcomeDeleted:
			stats.Deleted++
		case outcomeError:
			stats.Errors++
		}
	}
	return stats, nil
}

func (p *Processor) processOne(ctx context.Context, action types.ScheduledAction, now time.Time) (string, bool) {
	nowMs := now.UnixMilli()
	log := p.log.With("action", action.ID, "bot", action.BotID, "kind", action.Kind)

	if action.Attempts >= MaxAttempts {
		p.deleteAction(ctx, action, log, "attempts exhausted")
		return outcomeDeleted, false
	}

	bot, err := p.loadBot(ctx, action.BotID)
	if errors.Is(err, store.ErrNotFound) {
		p.deleteAction(ctx, action, log, "bot missing")
		return outcomeDeleted, false
	}
	if err != nil {
		return p.backoff(ctx, action, now, log, err), false
	}
	if !bot.Active {
		p.deleteAction(ctx, action, log, "bot inactive")
		return outcomeDeleted, false
	}

	if randutil.InCooldown(nowMs, bot.LastEngagedAtMs, EngagementCooldown) {
		remaining := EngagementCooldown - time.Duration(nowMs-bot.LastEngagedAtMs)*time.Millisecond
		action.ScheduledAtMs = nowMs + remaining.Milliseconds()
		if err := p.store.UpdateAction(ctx, action); err != nil {
			return p.backoff(ctx, action, now, log, err), false
		}
		return outcomeCooldown, false
	}

	outcome, liked, err := p.engage(ctx, action, bot, now, log)
	if err != nil {
		return p.backoff(ctx, action, now, log, err), liked
	}
	return outcome, liked
}

// engage performs steps 4 through 11 for one action. Any returned error is
// treated as transient and feeds the backoff path.
func (p *Processor) engage(ctx context.Context, action types.ScheduledAction, bot types.BotProfile, now time.Time, log *slog.Logger) (string, bool, error) {
	nowMs := now.UnixMilli()

	post, err := p.store.GetPost(ctx, action.PostID)
	if errors.Is(err, store.ErrNotFound) {
		p.deleteAction(ctx, action, log, "post missing")
		return outcomeDeleted, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load post: %w", err)
	}
	if !post.Published {
		action.ScheduledAtMs = nowMs + unpublishedRetryDelay.Milliseconds()
		if err := p.store.UpdateAction(ctx, action); err != nil {
			return "", false, fmt.Errorf("reschedule unpublished: %w", err)
		}
		return outcomeRescheduled, false, nil
	}

	// Pure like actions skip generation entirely.
	if action.Kind == types.ActionLikePost || action.Kind == types.ActionLikeComment {
		return p.processLike(ctx, action, bot, nowMs, log)
	}

	likeFirst := action.Metadata[types.MetaLikeFirst] == "true"
	liked := false
	if likeFirst {
		liked, err = p.store.LikePost(ctx, post.ID, bot.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", false, fmt.Errorf("like before comment: %w", err)
		}
	}

	mode, parent, err := p.resolveMode(ctx, action, bot, post)
	if err != nil {
		return "", liked, err
	}
	if mode == types.ModeReply && parent == nil {
		log.Info("reply target not found, dropping action", "reason", "reply_target_not_found")
		p.deleteAction(ctx, action, log, "reply target not found")
		return outcomeIgnored, liked, nil
	}

	// Quotas are re-checked here: comments by other actions may have landed
	// between scheduling and execution.
	botPostComments, err := p.store.CountPostComments(ctx, post.ID, bot.ID)
	if err != nil {
		return "", liked, fmt.Errorf("count post comments: %w", err)
	}
	if mode == types.ModeTopLevel {
		if max := bot.Behavior.MaxCommentsPerPost; max > 0 && botPostComments >= max {
			p.deleteAction(ctx, action, log, "post comment cap reached")
			return outcomeIgnored, liked, nil
		}
	}

	var threadEntries, path []types.ThreadEntry
	var botThreadReplies int
	if mode == types.ModeReply {
		rootID := types.ThreadRootOf(*parent)
		botThreadReplies, err = p.store.CountThreadReplies(ctx, rootID, bot.ID)
		if err != nil {
			return "", liked, fmt.Errorf("count thread replies: %w", err)
		}
		if max := bot.Behavior.MaxRepliesPerThread; max > 0 && botThreadReplies >= max {
			p.deleteAction(ctx, action, log, "thread reply cap reached")
			return outcomeIgnored, liked, nil
		}
		comments, err := p.store.ThreadComments(ctx, rootID, threadFetchLimit)
		if err != nil {
			return "", liked, fmt.Errorf("load thread: %w", err)
		}
		threadEntries = thread.BuildContext(comments, *parent, thread.DefaultRecentLimit)
		path = thread.BuildPath(thread.MapLookup(comments), *parent, thread.DefaultPathLimit)
	}

	text, err := p.generate(ctx, textgen.Request{
		Persona: bot,
		Mode:    mode,
		Post:    post,
		Parent:  parent,
		Thread:  threadEntries,
		Path:    path,
	})
	if err != nil {
		return "", liked, err
	}
	text = typo.Humanize(p.rng, text, bot.Behavior.TypoChance, bot.Behavior.MaxTyposPerComment)

	// Loop guard, applied only on the reply-triggered path: two bots
	// answering each other would otherwise alternate forever.
	if mode == types.ModeReply && action.Kind == types.ActionReplyToComment &&
		parent.AuthorIsBot && botThreadReplies >= loopGuardThreshold {
		log.Info("bot loop guard tripped", "thread", types.ThreadRootOf(*parent), "replies", botThreadReplies)
		p.deleteAction(ctx, action, log, "bot loop guard")
		return outcomeIgnored, liked, nil
	}

	comment := types.Comment{
		PostID:      post.ID,
		Content:     text,
		AuthorID:    bot.ID,
		AuthorName:  bot.DisplayName,
		AuthorIsBot: true,
	}
	if mode == types.ModeReply {
		comment.ParentCommentID = parent.ID
		comment.ThreadRootCommentID = types.ThreadRootOf(*parent)
	}
	commentID, err := p.store.CreateComment(ctx, comment)
	if err != nil {
		return "", liked, fmt.Errorf("persist comment: %w", err)
	}
	if err := p.store.IncrementPostComments(ctx, post.ID); err != nil {
		return "", liked, fmt.Errorf("bump post counter: %w", err)
	}
	if mode == types.ModeReply {
		if err := p.store.IncrementReplyCount(ctx, parent.ID); err != nil {
			return "", liked, fmt.Errorf("bump reply counter: %w", err)
		}
	}
	p.notifyHumans(ctx, bot, post, parent, comment, commentID, log)

	p.deleteAction(ctx, action, log, "engaged")
	p.markEngaged(ctx, bot.ID, nowMs, log)
	log.Info("engaged", "comment", commentID, "mode", mode, "liked_first", liked)
	return outcomeEngaged, liked, nil
}

func (p *Processor) processLike(ctx context.Context, action types.ScheduledAction, bot types.BotProfile, nowMs int64, log *slog.Logger) (string, bool, error) {
	var liked bool
	var err error
	switch action.Kind {
	case types.ActionLikeComment:
		target := action.ParentCommentID
		liked, err = p.store.LikeComment(ctx, target, bot.ID)
	default:
		liked, err = p.store.LikePost(ctx, action.PostID, bot.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		p.deleteAction(ctx, action, log, "like target missing")
		return outcomeDeleted, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("apply like: %w", err)
	}

	p.deleteAction(ctx, action, log, "like processed")
	if !liked {
		return outcomeIgnored, false, nil
	}
	p.markEngaged(ctx, bot.ID, nowMs, log)
	return outcomeEngaged, true, nil
}

// resolveMode decides TOP_LEVEL versus REPLY and resolves the parent
// comment. Forced metadata wins; reply-kind actions target their stored
// parent; otherwise the planner is consulted when threads already exist.
func (p *Processor) resolveMode(ctx context.Context, action types.ScheduledAction, bot types.BotProfile, post types.Post) (types.GenerationMode, *types.Comment, error) {
	if forced := action.Metadata[types.MetaForcedMode]; forced != "" {
		mode := types.GenerationMode(forced)
		if mode != types.ModeReply {
			return types.ModeTopLevel, nil, nil
		}
		target := action.Metadata[types.MetaForcedTarget]
		if target == "" {
			target = action.ParentCommentID
		}
		parent, err := p.lookupComment(ctx, target)
		if err != nil {
			return "", nil, err
		}
		return types.ModeReply, parent, nil
	}

	if action.Kind == types.ActionReplyToComment {
		parent, err := p.lookupComment(ctx, action.ParentCommentID)
		if err != nil {
			return "", nil, err
		}
		return types.ModeReply, parent, nil
	}

	if p.plan == nil {
		return types.ModeTopLevel, nil, nil
	}
	topLevel, err := p.store.TopLevelComments(ctx, post.ID, topLevelFetchLimit)
	if err != nil {
		return "", nil, fmt.Errorf("load top-level comments: %w", err)
	}
	if len(topLevel) == 0 {
		return types.ModeTopLevel, nil, nil
	}

	rec, err := p.plan.Plan(ctx, planner.Request{
		Post:     post,
		TopLevel: topLevel,
		Persona:  bot,
		Intent:   action.Metadata[types.MetaTrigger],
	})
	if err != nil {
		p.log.Warn("planner failed, defaulting to top level", "post", post.ID, "err", err)
		return types.ModeTopLevel, nil, nil
	}
	rec = planner.Sanitize(rec, topLevel)
	if rec.Mode != types.ModeReply {
		return types.ModeTopLevel, nil, nil
	}
	parent, err := p.lookupComment(ctx, rec.TargetCommentID)
	if err != nil {
		return "", nil, err
	}
	return types.ModeReply, parent, nil
}

// lookupComment resolves a parent target. A missing comment is a permanent
// condition and yields nil; any other store failure is transient and must
// reach the backoff path.
func (p *Processor) lookupComment(ctx context.Context, id string) (*types.Comment, error) {
	if id == "" {
		return nil, nil
	}
	c, err := p.store.GetComment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load comment %s: %w", id, err)
	}
	return &c, nil
}

func (p *Processor) generate(ctx context.Context, req textgen.Request) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("generation rate limit: %w", err)
		}
	}
	start := time.Now()
	text, err := p.gen.Generate(ctx, req)
	generationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return text, nil
}

// notifyHumans fans a notification out to the human being engaged with.
// Failures here never abort the engagement.
func (p *Processor) notifyHumans(ctx context.Context, bot types.BotProfile, post types.Post, parent *types.Comment, c types.Comment, commentID string, log *slog.Logger) {
	n := types.Notification{
		PostID:    post.ID,
		CommentID: commentID,
		Text:      c.Content,
		CreatedAt: p.now(),
	}
	if parent != nil {
		if parent.AuthorIsBot {
			return
		}
		n.RecipientID = parent.AuthorID
		n.ParentCommentID = parent.ID
		n.ParentAuthorID = parent.AuthorID
		n.ThreadRootCommentID = types.ThreadRootOf(*parent)
	} else {
		if post.AuthorID == "" || post.AuthorID == bot.ID {
			return
		}
		n.RecipientID = post.AuthorID
	}
	if _, err := p.store.CreateNotification(ctx, n); err != nil {
		log.Warn("notification fan-out failed", "recipient", n.RecipientID, "err", err)
	}
}

// backoff converts a transient failure into a retry or a terminal delete.
func (p *Processor) backoff(ctx context.Context, action types.ScheduledAction, now time.Time, log *slog.Logger, cause error) string {
	delay, terminal := Backoff(action.Attempts)
	if terminal {
		log.Error("action failed terminally", "attempts", action.Attempts+1, "err", cause)
		p.deleteAction(ctx, action, log, "retries exhausted")
		return outcomeError
	}

	action.Attempts++
	action.ScheduledAtMs = now.UnixMilli() + delay.Milliseconds()
	if err := p.store.UpdateAction(ctx, action); err != nil {
		log.Error("failed to reschedule after error", "err", err, "cause", cause)
		return outcomeError
	}
	log.Warn("action rescheduled after error", "attempts", action.Attempts, "delay", delay, "err", cause)
	return outcomeError
}

func (p *Processor) loadBot(ctx context.Context, id string) (types.BotProfile, error) {
	if bot, ok := p.botCache.Get(id); ok {
		return bot, nil
	}
	bot, err := p.store.GetBot(ctx, id)
	if err != nil {
		return types.BotProfile{}, err
	}
	p.botCache.Add(id, bot)
	return bot, nil
}

func (p *Processor) markEngaged(ctx context.Context, botID string, nowMs int64, log *slog.Logger) {
	if err := p.store.SetBotLastEngaged(ctx, botID, nowMs); err != nil {
		log.Warn("failed to update engagement cooldown", "err", err)
	}
	// The cached profile now carries a stale cooldown timestamp.
	p.botCache.Remove(botID)
}

func (p *Processor) deleteAction(ctx context.Context, action types.ScheduledAction, log *slog.Logger, why string) {
	if err := p.store.DeleteAction(ctx, action.ID); err != nil {
		log.Error("failed to delete action", "why", why, "err", err)
	}
}
