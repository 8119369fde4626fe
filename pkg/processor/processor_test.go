package processor

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/botengine/pkg/planner"
	"github.com/quillpost/botengine/pkg/store"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/types"
)

var procNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedPlanner struct {
	rec planner.Recommendation
	err error
}

func (f *fixedPlanner) Plan(context.Context, planner.Request) (planner.Recommendation, error) {
	return f.rec, f.err
}

type fixture struct {
	store *store.Memory
	gen   *textgen.Scripted
	proc  *Processor
}

func newFixture(t *testing.T, plan planner.Planner) *fixture {
	t.Helper()
	mem := store.NewMemory()
	gen := textgen.NewScripted()
	proc := New(Config{
		Store:     mem,
		Generator: gen,
		Planner:   plan,
		Rand:      rand.New(rand.NewSource(11)),
		Now:       func() time.Time { return procNow },
	})

	ctx := context.Background()
	require.NoError(t, mem.PutBot(ctx, types.BotProfile{
		ID: "bot-a", DisplayName: "Ada", Active: true,
		Behavior: types.BehaviorConfig{BaseResponseProbability: 1, ReplyResponseProbability: 1},
	}))
	require.NoError(t, mem.PutPost(ctx, types.Post{
		ID: "p1", Title: "Raft in practice", AuthorID: "human-1", AuthorName: "Pat",
		Published: true, CreatedAt: procNow.Add(-time.Hour),
	}))
	return &fixture{store: mem, gen: gen, proc: proc}
}

func (fx *fixture) addAction(t *testing.T, a types.ScheduledAction) string {
	t.Helper()
	if a.ScheduledAtMs == 0 {
		a.ScheduledAtMs = procNow.Add(-time.Minute).UnixMilli()
	}
	id, err := fx.store.CreateAction(context.Background(), a)
	require.NoError(t, err)
	return id
}

func (fx *fixture) actionCount(t *testing.T) int {
	t.Helper()
	due, err := fx.store.DueActions(context.Background(), procNow.Add(24*time.Hour).UnixMilli(), 0)
	require.NoError(t, err)
	return len(due)
}

func TestProcessCommentOnPost(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Engaged: 1}, stats)
	assert.Zero(t, fx.actionCount(t), "action consumed exactly once")

	comments, err := fx.store.TopLevelComments(t.Context(), "p1", 0)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "bot-a", comments[0].AuthorID)
	assert.True(t, comments[0].AuthorIsBot)

	post, err := fx.store.GetPost(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, post.CommentCount)

	bot, err := fx.store.GetBot(t.Context(), "bot-a")
	require.NoError(t, err)
	assert.Equal(t, procNow.UnixMilli(), bot.LastEngagedAtMs, "engagement cooldown set")

	// The human post author gets notified.
	notifs, err := fx.store.BotNotifications(t.Context(), "human-1", 0)
	require.NoError(t, err)
	assert.Len(t, notifs, 1)
}

func TestReplyTargetNotFound(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionReplyToComment, BotID: "bot-a", PostID: "p1",
		ParentCommentID: "vanished",
		Metadata:        map[string]string{types.MetaTrigger: types.TriggerDirectReply},
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Ignored: 1}, stats)
	assert.Zero(t, fx.actionCount(t), "unresolvable targets are deleted, not retried")
}

func TestEngagementCooldownReschedules(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.store.SetBotLastEngaged(t.Context(), "bot-a",
		procNow.Add(-10*time.Minute).UnixMilli()))
	id := fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Cooldown: 1}, stats)

	due, err := fx.store.DueActions(t.Context(), procNow.Add(24*time.Hour).UnixMilli(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	// Rescheduled to the end of the 30 minute quiet period.
	assert.Equal(t, procNow.Add(20*time.Minute).UnixMilli(), due[0].ScheduledAtMs)
	assert.Empty(t, fx.gen.Calls(), "no generation during cooldown")
}

func TestUnpublishedPostReschedules(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.store.PutPost(t.Context(), types.Post{
		ID: "draft", Title: "wip", Published: false, CreatedAt: procNow,
	}))
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "draft",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Rescheduled: 1}, stats)

	due, err := fx.store.DueActions(t.Context(), procNow.Add(24*time.Hour).UnixMilli(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, procNow.Add(10*time.Minute).UnixMilli(), due[0].ScheduledAtMs)
}

func TestMissingPostDeletes(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "gone",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Deleted: 1}, stats)
	assert.Zero(t, fx.actionCount(t))
}

func TestAttemptsExhaustedDeletes(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
		Attempts: MaxAttempts,
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Deleted: 1}, stats)
	assert.Zero(t, fx.actionCount(t))
	assert.Empty(t, fx.gen.Calls())
}

func TestInactiveBotDeletes(t *testing.T) {
	fx := newFixture(t, nil)
	require.NoError(t, fx.store.PutBot(t.Context(), types.BotProfile{
		ID: "bot-off", DisplayName: "Off", Active: false,
	}))
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-off", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Deleted: 1}, stats)
}

func TestGenerationErrorBacksOff(t *testing.T) {
	fx := newFixture(t, nil)
	fx.gen.Fail(errors.New("model unavailable"))
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Errors: 1}, stats)

	due, err := fx.store.DueActions(t.Context(), procNow.Add(24*time.Hour).UnixMilli(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, procNow.Add(2*time.Minute).UnixMilli(), due[0].ScheduledAtMs)
}

func TestBotLoopGuard(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := t.Context()

	// A bot-authored parent and two prior replies by this bot in the thread.
	_, err := fx.store.CreateComment(ctx, types.Comment{
		ID: "c-root", PostID: "p1", AuthorID: "bot-b", AuthorName: "Ben",
		AuthorIsBot: true, Content: "root", CreatedAt: procNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	for _, id := range []string{"r1", "r2"} {
		_, err := fx.store.CreateComment(ctx, types.Comment{
			ID: id, PostID: "p1", AuthorID: "bot-a", AuthorIsBot: true,
			ParentCommentID: "c-root", ThreadRootCommentID: "c-root",
			Content: "prior", CreatedAt: procNow.Add(-30 * time.Minute),
		})
		require.NoError(t, err)
	}
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionReplyToComment, BotID: "bot-a", PostID: "p1",
		ParentCommentID: "c-root", ThreadRootCommentID: "c-root",
		Metadata: map[string]string{types.MetaTrigger: types.TriggerDirectReply},
	})

	stats, err := fx.proc.ProcessDueActions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Ignored: 1}, stats)
	assert.Zero(t, fx.actionCount(t))

	// No third reply was persisted.
	n, err := fx.store.CountThreadReplies(ctx, "c-root", "bot-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostCapHoldsAtProcessing(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := t.Context()

	require.NoError(t, fx.store.PutBot(ctx, types.BotProfile{
		ID: "bot-a", DisplayName: "Ada", Active: true,
		Behavior: types.BehaviorConfig{
			BaseResponseProbability: 1,
			MaxCommentsPerPost:      1,
		},
	}))
	// One prior comment already stands, so the cap is spent.
	_, err := fx.store.CreateComment(ctx, types.Comment{
		ID: "prior", PostID: "p1", AuthorID: "bot-a", AuthorIsBot: true,
		Content: "already here", CreatedAt: procNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Ignored: 1}, stats)
	assert.Zero(t, fx.actionCount(t))
	assert.Empty(t, fx.gen.Calls(), "no generation for a capped post")

	n, err := fx.store.CountPostComments(ctx, "p1", "bot-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "per-post cap must hold at processing time")
}

func TestThreadCapHoldsAtProcessing(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := t.Context()

	require.NoError(t, fx.store.PutBot(ctx, types.BotProfile{
		ID: "bot-a", DisplayName: "Ada", Active: true,
		Behavior: types.BehaviorConfig{
			ReplyResponseProbability: 1,
			MaxRepliesPerThread:      1,
		},
	}))
	_, err := fx.store.CreateComment(ctx, types.Comment{
		ID: "c-root", PostID: "p1", AuthorID: "human-1", AuthorName: "Pat",
		Content: "root", CreatedAt: procNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = fx.store.CreateComment(ctx, types.Comment{
		ID: "r1", PostID: "p1", AuthorID: "bot-a", AuthorIsBot: true,
		ParentCommentID: "c-root", ThreadRootCommentID: "c-root",
		Content: "prior reply", CreatedAt: procNow.Add(-30 * time.Minute),
	})
	require.NoError(t, err)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionReplyToComment, BotID: "bot-a", PostID: "p1",
		ParentCommentID: "c-root", ThreadRootCommentID: "c-root",
		Metadata: map[string]string{types.MetaTrigger: types.TriggerDirectReply},
	})

	stats, err := fx.proc.ProcessDueActions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Ignored: 1}, stats)
	assert.Zero(t, fx.actionCount(t))

	n, err := fx.store.CountThreadReplies(ctx, "c-root", "bot-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "per-thread cap must hold at processing time")
}

// flakyStore fails GetComment a configured number of times, then delegates.
type flakyStore struct {
	*store.Memory
	failures int
}

func (f *flakyStore) GetComment(ctx context.Context, id string) (types.Comment, error) {
	if f.failures > 0 {
		f.failures--
		return types.Comment{}, errors.New("store temporarily unavailable")
	}
	return f.Memory.GetComment(ctx, id)
}

func TestTransientParentLookupBacksOff(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := t.Context()

	flaky := &flakyStore{Memory: fx.store, failures: 1}
	proc := New(Config{
		Store:     flaky,
		Generator: fx.gen,
		Rand:      rand.New(rand.NewSource(11)),
		Now:       func() time.Time { return procNow },
	})

	_, err := fx.store.CreateComment(ctx, types.Comment{
		ID: "c1", PostID: "p1", AuthorID: "human-1", AuthorName: "Pat",
		Content: "still here", CreatedAt: procNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionReplyToComment, BotID: "bot-a", PostID: "p1",
		ParentCommentID: "c1",
		Metadata:        map[string]string{types.MetaTrigger: types.TriggerDirectReply},
	})

	stats, err := proc.ProcessDueActions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Errors: 1}, stats)

	// The parent still exists, so the failure is transient: the action is
	// rescheduled with backoff, not dropped.
	due, err := fx.store.DueActions(ctx, procNow.Add(24*time.Hour).UnixMilli(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)
	assert.Equal(t, procNow.Add(2*time.Minute).UnixMilli(), due[0].ScheduledAtMs)

	// The retry succeeds once the store recovers.
	due[0].ScheduledAtMs = procNow.Add(-time.Second).UnixMilli()
	require.NoError(t, fx.store.UpdateAction(ctx, due[0]))
	stats, err = proc.ProcessDueActions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Engaged: 1}, stats)
}

func TestLikeActionIdempotent(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionLikePost, BotID: "bot-a", PostID: "p1",
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Engaged: 1, Likes: 1}, stats)

	// A second like of the same post is a benign no-op.
	require.NoError(t, fx.store.SetBotLastEngaged(t.Context(), "bot-a", 0))
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionLikePost, BotID: "bot-a", PostID: "p1",
	})
	stats, err = fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Ignored: 1}, stats)
}

func TestPlannerDrivesReplyMode(t *testing.T) {
	plan := &fixedPlanner{rec: planner.Recommendation{
		Mode: types.ModeReply, TargetCommentID: "c1", Reason: "join",
	}}
	fx := newFixture(t, plan)
	_, err := fx.store.CreateComment(t.Context(), types.Comment{
		ID: "c1", PostID: "p1", AuthorID: "human-1", AuthorName: "Pat",
		Content: "interesting take", CreatedAt: procNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
		Metadata: map[string]string{types.MetaTrigger: types.TriggerTick},
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Engaged: 1}, stats)

	thread, err := fx.store.ThreadComments(t.Context(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, thread, 2, "planner recommendation turned the comment into a reply")
	assert.Equal(t, "c1", thread[0].ParentCommentID)

	// The human parent author is notified about the reply.
	notifs, err := fx.store.BotNotifications(t.Context(), "human-1", 0)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, "c1", notifs[0].ParentCommentID)
}

func TestLikeFirstMetadata(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
		Metadata: map[string]string{types.MetaLikeFirst: "true"},
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Engaged: 1, Likes: 1}, stats)

	fresh, err := fx.store.LikePost(t.Context(), "p1", "bot-a")
	require.NoError(t, err)
	assert.False(t, fresh, "post was already liked during processing")
}

func TestBackoffTable(t *testing.T) {
	cases := []struct {
		attempts int
		delay    time.Duration
		terminal bool
	}{
		{0, 2 * time.Minute, false},
		{1, 4 * time.Minute, false},
		{2, 8 * time.Minute, false},
		{3, 16 * time.Minute, false},
		{4, 0, true},
		{7, 0, true},
	}
	for _, tc := range cases {
		delay, terminal := Backoff(tc.attempts)
		assert.Equal(t, tc.delay, delay, "attempts=%d", tc.attempts)
		assert.Equal(t, tc.terminal, terminal, "attempts=%d", tc.attempts)
	}
}

func TestDueOrderingRespected(t *testing.T) {
	fx := newFixture(t, nil)
	fx.addAction(t, types.ScheduledAction{
		ID: "late", Kind: types.ActionLikePost, BotID: "bot-a", PostID: "p1",
		ScheduledAtMs: procNow.Add(-time.Minute).UnixMilli(),
	})
	fx.addAction(t, types.ScheduledAction{
		ID: "early", Kind: types.ActionCommentOnPost, BotID: "bot-a", PostID: "p1",
		ScheduledAtMs: procNow.Add(-2 * time.Hour).UnixMilli(),
	})

	stats, err := fx.proc.ProcessDueActions(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	due, err := fx.store.DueActions(t.Context(), procNow.UnixMilli(), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "late", due[0].ID, "the earlier action was processed first")
}
