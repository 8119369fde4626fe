// Package engine wires the scheduler, processor, and resolver around one
// store and drives them on tickers. It is the composition root the cmd
// binaries build on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/quillpost/botengine/pkg/engage"
	"github.com/quillpost/botengine/pkg/planner"
	"github.com/quillpost/botengine/pkg/processor"
	"github.com/quillpost/botengine/pkg/scheduler"
	"github.com/quillpost/botengine/pkg/store"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/thread"
	"github.com/quillpost/botengine/pkg/types"
)

// Defaults for the run loops.
const (
	DefaultTickInterval    = time.Minute
	DefaultProcessInterval = 30 * time.Second
	DefaultBatchLimit      = 25

	recentPostsLimit  = 20
	notificationLimit = 10
)

// Config wires an Engine. Store and Generator are required.
type Config struct {
	Store     store.Store
	Generator textgen.Generator
	Planner   planner.Planner
	Rand      *rand.Rand
	Log       *slog.Logger
	Events    EventLogger

	TickInterval    time.Duration
	ProcessInterval time.Duration
	BatchLimit      int

	// GenerationRate throttles generation calls; zero means unlimited.
	GenerationRate rate.Limit

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine runs the engagement loops over one store.
type Engine struct {
	store    store.Store
	gen      textgen.Generator
	sched    *scheduler.Scheduler
	proc     *processor.Processor
	resolver *engage.Resolver
	rng      *rand.Rand
	log      *slog.Logger
	events   EventLogger
	now      func() time.Time

	tickInterval    time.Duration
	processInterval time.Duration
	batchLimit      int

	ticks int
}

// New creates an engine from the config.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		panic("engine: Config.Store is required")
	}
	if cfg.Generator == nil {
		panic("engine: Config.Generator is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	process := cfg.ProcessInterval
	if process <= 0 {
		process = DefaultProcessInterval
	}
	batch := cfg.BatchLimit
	if batch <= 0 {
		batch = DefaultBatchLimit
	}

	return &Engine{
		store: cfg.Store,
		gen:   cfg.Generator,
		sched: scheduler.New(rng, log),
		proc: processor.New(processor.Config{
			Store:          cfg.Store,
			Generator:      cfg.Generator,
			Planner:        cfg.Planner,
			Rand:           rng,
			Log:            log,
			GenerationRate: cfg.GenerationRate,
			Now:            now,
		}),
		resolver:        engage.New(log),
		rng:             rng,
		log:             log.With("component", "engine"),
		events:          cfg.Events,
		now:             now,
		tickInterval:    tick,
		processInterval: process,
		batchLimit:      batch,
	}
}

// RunTick evaluates every active bot once against the current posts and
// pending notifications, persisting whatever the scheduler decides.
func (e *Engine) RunTick(ctx context.Context) error {
	now := e.now()
	e.ticks++

	// Global comment state lives in the store so roster-wide limits survive
	// restarts.
	global, err := e.store.GlobalState(ctx)
	if err != nil {
		return fmt.Errorf("load global state: %w", err)
	}
	global.CommentsScheduledThisTick = 0

	bots, err := e.store.ListActiveBots(ctx)
	if err != nil {
		return fmt.Errorf("list bots: %w", err)
	}
	posts, err := e.store.ListRecentPosts(ctx, recentPostsLimit)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	for _, bot := range bots {
		if err := e.tickBot(ctx, bot, now, posts, &global); err != nil {
			e.log.Error("tick failed for bot", "bot", bot.ID, "err", err)
		}
	}

	if err := e.store.SaveGlobalState(ctx, global); err != nil {
		return fmt.Errorf("save global state: %w", err)
	}
	return nil
}

func (e *Engine) tickBot(ctx context.Context, bot types.BotProfile, now time.Time, posts []types.Post, global *types.GlobalCommentState) error {
	in := scheduler.Input{
		Bot:     bot,
		Now:     now,
		Global:  global,
		Posts:   make([]scheduler.PostCandidate, 0, len(posts)),
		Runtime: types.RuntimeState{},
	}

	for _, p := range posts {
		n, err := e.store.CountPostComments(ctx, p.ID, bot.ID)
		if err != nil {
			return fmt.Errorf("count post comments: %w", err)
		}
		in.Posts = append(in.Posts, scheduler.PostCandidate{Post: p, BotComments: n})
	}

	notifications, err := e.store.BotNotifications(ctx, bot.ID, notificationLimit)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	for _, n := range notifications {
		replies := 0
		if n.ThreadRootCommentID != "" {
			replies, err = e.store.CountThreadReplies(ctx, n.ThreadRootCommentID, bot.ID)
			if err != nil {
				return fmt.Errorf("count thread replies: %w", err)
			}
		}
		in.Triggers = append(in.Triggers, scheduler.ReplyTrigger{Notification: n, ThreadReplies: replies})
	}

	in.Runtime, err = e.store.RuntimeState(ctx, bot.ID)
	if err != nil {
		return fmt.Errorf("load runtime state: %w", err)
	}

	res := e.sched.EvaluateTick(in)
	e.logEvent(Event{
		Timestamp:      now,
		Tick:           e.ticks,
		Kind:           "tick",
		BotID:          bot.ID,
		BotName:        bot.DisplayName,
		Status:         res.Status,
		Reason:         res.Reason,
		NotificationID: res.NotificationID,
	})

	if res.Status != scheduler.StatusScheduled {
		// A consumed-but-ignored trigger stays pending for the next tick.
		return nil
	}

	if _, err := e.store.CreateAction(ctx, *res.Action); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	if err := e.store.SaveRuntimeState(ctx, *res.Runtime); err != nil {
		return fmt.Errorf("save runtime state: %w", err)
	}
	if res.NotificationID != "" {
		if err := e.store.MarkNotificationHandled(ctx, res.NotificationID); err != nil {
			e.log.Warn("failed to mark notification handled", "notification", res.NotificationID, "err", err)
		}
	}
	return nil
}

// ProcessBatch consumes one batch of due actions.
func (e *Engine) ProcessBatch(ctx context.Context) (processor.Stats, error) {
	stats, err := e.proc.ProcessDueActions(ctx, e.batchLimit)
	if err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		e.log.Info("batch processed",
			"total", stats.Total, "engaged", stats.Engaged, "ignored", stats.Ignored,
			"cooldown", stats.Cooldown, "rescheduled", stats.Rescheduled,
			"deleted", stats.Deleted, "errors", stats.Errors, "likes", stats.Likes)
		e.logEvent(Event{
			Timestamp: e.now(),
			Kind:      "batch",
			Batch: &Batch{
				Total: stats.Total, Engaged: stats.Engaged, Ignored: stats.Ignored,
				Cooldown: stats.Cooldown, Rescheduled: stats.Rescheduled,
				Deleted: stats.Deleted, Errors: stats.Errors, Likes: stats.Likes,
			},
		})
	}
	return stats, nil
}

// ResolveReply resolves a reply notification immediately through the
// engagement resolver instead of waiting for the next tick. Callers hand it
// the notification straight from the change feed.
func (e *Engine) ResolveReply(ctx context.Context, notification types.Notification) (engage.Result, error) {
	bot, err := e.store.GetBot(ctx, notification.RecipientID)
	if err != nil {
		return engage.Result{}, fmt.Errorf("load bot: %w", err)
	}
	post, err := e.store.GetPost(ctx, notification.PostID)
	if err != nil {
		return engage.Result{}, fmt.Errorf("load post: %w", err)
	}

	ec := engage.Context{Post: post}
	if notification.CommentID != "" {
		if c, err := e.store.GetComment(ctx, notification.CommentID); err == nil {
			ec.Parent = &c
			rootID := types.ThreadRootOf(c)
			comments, err := e.store.ThreadComments(ctx, rootID, thread.DefaultRecentLimit*2)
			if err == nil {
				ec.Thread = thread.BuildContext(comments, c, thread.DefaultRecentLimit)
				ec.Path = thread.BuildPath(thread.MapLookup(comments), c, thread.DefaultPathLimit)
			}
			if n, err := e.store.CountThreadReplies(ctx, rootID, bot.ID); err == nil {
				ec.BotReplies = n
			}
		}
	}
	if n, err := e.store.CountPostComments(ctx, post.ID, bot.ID); err == nil {
		ec.BotComments = n
	}

	action := types.ScheduledAction{
		Kind:                types.ActionReplyToComment,
		BotID:               bot.ID,
		PostID:              post.ID,
		ParentCommentID:     notification.CommentID,
		ThreadRootCommentID: notification.ThreadRootCommentID,
		Metadata:            map[string]string{types.MetaTrigger: types.TriggerDirectReply},
	}
	collab := engage.Collaborators{
		Rand: e.rng,
		Generate: func(ctx context.Context, req textgen.Request) (string, error) {
			return e.gen.Generate(ctx, req)
		},
		CreateComment: func(ctx context.Context, c types.Comment) (string, error) {
			id, err := e.store.CreateComment(ctx, c)
			if err != nil {
				return "", err
			}
			if err := e.store.IncrementPostComments(ctx, c.PostID); err != nil {
				return id, err
			}
			if c.ParentCommentID != "" {
				if err := e.store.IncrementReplyCount(ctx, c.ParentCommentID); err != nil {
					return id, err
				}
			}
			return id, nil
		},
		LikePost: e.store.LikePost,
	}

	res, err := e.resolver.Resolve(ctx, action, bot, ec, collab)
	if err != nil {
		return res, err
	}

	if err := e.store.MarkNotificationHandled(ctx, notification.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("failed to mark notification handled", "notification", notification.ID, "err", err)
	}
	if res.Status == engage.StatusEngaged {
		if err := e.store.SetBotLastEngaged(ctx, bot.ID, e.now().UnixMilli()); err != nil {
			e.log.Warn("failed to update engagement cooldown", "bot", bot.ID, "err", err)
		}
	}
	e.logEvent(Event{
		Timestamp:      e.now(),
		Kind:           "direct_reply",
		BotID:          bot.ID,
		BotName:        bot.DisplayName,
		Status:         res.Status,
		Reason:         res.Reason,
		ActionKind:     res.Kind,
		PostID:         post.ID,
		CommentID:      res.CommentID,
		NotificationID: notification.ID,
	})
	return res, nil
}

// Run drives the tick and processing loops until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	tickTicker := time.NewTicker(e.tickInterval)
	defer tickTicker.Stop()
	processTicker := time.NewTicker(e.processInterval)
	defer processTicker.Stop()

	e.log.Info("engine running",
		"tick_interval", e.tickInterval,
		"process_interval", e.processInterval,
		"batch_limit", e.batchLimit)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping", "ticks", e.ticks)
			if e.events != nil {
				if err := e.events.Close(); err != nil {
					e.log.Warn("failed to close event log", "err", err)
				}
			}
			return ctx.Err()
		case <-tickTicker.C:
			if err := e.RunTick(ctx); err != nil {
				e.log.Error("tick failed", "err", err)
			}
		case <-processTicker.C:
			if _, err := e.ProcessBatch(ctx); err != nil {
				e.log.Error("batch failed", "err", err)
			}
		}
	}
}

// Ticks reports how many ticks have run.
func (e *Engine) Ticks() int { return e.ticks }

func (e *Engine) logEvent(ev Event) {
	if e.events == nil {
		return
	}
	if err := e.events.LogEvent(ev); err != nil {
		e.log.Warn("failed to log event", "err", err)
	}
}
