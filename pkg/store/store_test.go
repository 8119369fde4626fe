package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillpost/botengine/pkg/types"
)

// Both implementations run the same conformance suite.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	doc, err := Open(context.Background(), filepath.Join(t.TempDir(), "engine.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })
	return map[string]Store{
		"memory":   NewMemory(),
		"docstore": doc,
	}
}

func TestDueActionsOrderingAndLimit(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, a := range []types.ScheduledAction{
				{ID: "a3", Kind: types.ActionCommentOnPost, BotID: "b1", PostID: "p1", ScheduledAtMs: 3000},
				{ID: "a1", Kind: types.ActionCommentOnPost, BotID: "b1", PostID: "p1", ScheduledAtMs: 1000},
				{ID: "a2", Kind: types.ActionLikePost, BotID: "b2", PostID: "p1", ScheduledAtMs: 2000},
				{ID: "a9", Kind: types.ActionLikePost, BotID: "b2", PostID: "p1", ScheduledAtMs: 9000},
			} {
				_, err := s.CreateAction(ctx, a)
				require.NoError(t, err)
			}

			due, err := s.DueActions(ctx, 5000, 0)
			require.NoError(t, err)
			require.Len(t, due, 3)
			assert.Equal(t, "a1", due[0].ID)
			assert.Equal(t, "a2", due[1].ID)
			assert.Equal(t, "a3", due[2].ID)

			due, err = s.DueActions(ctx, 5000, 2)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, "a1", due[0].ID)

			require.NoError(t, s.DeleteAction(ctx, "a1"))
			due, err = s.DueActions(ctx, 5000, 0)
			require.NoError(t, err)
			require.Len(t, due, 2)
			assert.Equal(t, "a2", due[0].ID)
		})
	}
}

func TestLikesAreIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutPost(ctx, types.Post{ID: "p1", Title: "hello", Published: true}))
			_, err := s.CreateComment(ctx, types.Comment{ID: "c1", PostID: "p1", Content: "hi"})
			require.NoError(t, err)

			fresh, err := s.LikePost(ctx, "p1", "bot-a")
			require.NoError(t, err)
			assert.True(t, fresh)

			fresh, err = s.LikePost(ctx, "p1", "bot-a")
			require.NoError(t, err)
			assert.False(t, fresh)

			fresh, err = s.LikeComment(ctx, "c1", "bot-a")
			require.NoError(t, err)
			assert.True(t, fresh)

			_, err = s.LikePost(ctx, "missing", "bot-a")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.LikeComment(ctx, "missing", "bot-a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCommentCountsAndThreads(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

			mk := func(id, parent, root string, offset time.Duration) types.Comment {
				return types.Comment{
					ID: id, PostID: "p1", AuthorID: "bot-a", AuthorIsBot: true,
					Content: "c " + id, ParentCommentID: parent, ThreadRootCommentID: root,
					CreatedAt: base.Add(offset),
				}
			}
			for _, c := range []types.Comment{
				mk("root", "", "", 0),
				mk("r1", "root", "root", time.Minute),
				mk("r2", "r1", "root", 2*time.Minute),
				mk("other", "", "", 3*time.Minute),
			} {
				_, err := s.CreateComment(ctx, c)
				require.NoError(t, err)
			}

			thread, err := s.ThreadComments(ctx, "root", 0)
			require.NoError(t, err)
			require.Len(t, thread, 3)
			assert.Equal(t, "r2", thread[0].ID, "thread must be newest first")

			top, err := s.TopLevelComments(ctx, "p1", 0)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, "root", top[0].ID, "top level must be oldest first")

			n, err := s.CountPostComments(ctx, "p1", "bot-a")
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			// The root itself is not a reply.
			n, err = s.CountThreadReplies(ctx, "root", "bot-a")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, s.IncrementReplyCount(ctx, "root"))
			c, err := s.GetComment(ctx, "root")
			require.NoError(t, err)
			assert.Equal(t, 1, c.ReplyCount)
		})
	}
}

func TestRuntimeStateRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			st, err := s.RuntimeState(ctx, "bot-a")
			require.NoError(t, err)
			assert.Equal(t, "bot-a", st.BotID, "missing state must come back normalized")
			assert.Zero(t, st.LastActionScheduledAtMs)

			st.LastActionScheduledAtMs = 12345
			st.TopLevel.HourCount = 2
			require.NoError(t, s.SaveRuntimeState(ctx, st))

			got, err := s.RuntimeState(ctx, "bot-a")
			require.NoError(t, err)
			assert.Equal(t, int64(12345), got.LastActionScheduledAtMs)
			assert.Equal(t, 2, got.TopLevel.HourCount)
		})
	}
}

func TestGlobalStateRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			g, err := s.GlobalState(ctx)
			require.NoError(t, err)
			assert.Equal(t, types.DefaultGlobalPerTickLimit, g.PerTickLimit, "missing state must come back normalized")
			assert.Equal(t, types.DefaultGlobalPerHourLimit, g.PerHourLimit)

			g.HourCount = 5
			g.HourWindowStartMs = 1000
			require.NoError(t, s.SaveGlobalState(ctx, g))

			got, err := s.GlobalState(ctx)
			require.NoError(t, err)
			assert.Equal(t, 5, got.HourCount)
			assert.Equal(t, int64(1000), got.HourWindowStartMs)
		})
	}
}

func TestBotsAndNotifications(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.PutBot(ctx, types.BotProfile{ID: "b1", DisplayName: "Ada", Active: true}))
			require.NoError(t, s.PutBot(ctx, types.BotProfile{ID: "b2", DisplayName: "Ben", Active: false}))

			active, err := s.ListActiveBots(ctx)
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, "b1", active[0].ID)
			assert.Positive(t, active[0].Behavior.BaseResponseProbability, "reads must be normalized")

			require.NoError(t, s.SetBotLastEngaged(ctx, "b1", 999))
			b, err := s.GetBot(ctx, "b1")
			require.NoError(t, err)
			assert.Equal(t, int64(999), b.LastEngagedAtMs)

			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			for i, n := range []types.Notification{
				{ID: "n2", RecipientID: "b1", PostID: "p1", CreatedAt: base.Add(time.Minute)},
				{ID: "n1", RecipientID: "b1", PostID: "p1", CreatedAt: base},
				{ID: "n3", RecipientID: "b2", PostID: "p1", CreatedAt: base},
			} {
				_, err := s.CreateNotification(ctx, n)
				require.NoError(t, err, "notification %d", i)
			}

			pending, err := s.BotNotifications(ctx, "b1", 0)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, "n1", pending[0].ID, "oldest first")

			require.NoError(t, s.MarkNotificationHandled(ctx, "n1"))
			pending, err = s.BotNotifications(ctx, "b1", 0)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "n2", pending[0].ID)
		})
	}
}

func TestDocStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.json")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutBot(ctx, types.BotProfile{ID: "b1", DisplayName: "Ada", Active: true}))
	require.NoError(t, s.SaveGlobalState(ctx, types.GlobalCommentState{HourCount: 7, PerTickLimit: 3, PerHourLimit: 12}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	b, err := s.GetBot(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", b.DisplayName)

	g, err := s.GlobalState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, g.HourCount)
}
