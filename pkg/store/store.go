// Package store defines the document storage collaborator for the
// engagement engine and ships two implementations: an in-memory store for
// tests and offline simulation, and a persistent store backed by an
// embedded JSON document store.
package store

import (
	"context"
	"errors"

	"github.com/quillpost/botengine/pkg/types"
)

// ErrNotFound reports a missing document.
var ErrNotFound = errors.New("store: not found")

// Store is the document storage contract the engine consumes. All reads
// return normalized structs (see types.Normalize*), so callers never deal
// with half-populated documents.
type Store interface {
	// Bots.
	GetBot(ctx context.Context, id string) (types.BotProfile, error)
	PutBot(ctx context.Context, bot types.BotProfile) error
	ListActiveBots(ctx context.Context) ([]types.BotProfile, error)
	SetBotLastEngaged(ctx context.Context, botID string, atMs int64) error

	// Scheduled actions. DueActions returns actions with scheduledAt <= nowMs
	// ordered ascending by scheduledAt, at most limit of them.
	CreateAction(ctx context.Context, a types.ScheduledAction) (string, error)
	UpdateAction(ctx context.Context, a types.ScheduledAction) error
	DeleteAction(ctx context.Context, id string) error
	DueActions(ctx context.Context, nowMs int64, limit int) ([]types.ScheduledAction, error)

	// Posts.
	GetPost(ctx context.Context, id string) (types.Post, error)
	PutPost(ctx context.Context, p types.Post) error
	ListRecentPosts(ctx context.Context, limit int) ([]types.Post, error)
	IncrementPostComments(ctx context.Context, postID string) error

	// Comments. ThreadComments returns newest first; TopLevelComments
	// returns oldest first.
	CreateComment(ctx context.Context, c types.Comment) (string, error)
	GetComment(ctx context.Context, id string) (types.Comment, error)
	IncrementReplyCount(ctx context.Context, commentID string) error
	ThreadComments(ctx context.Context, threadRootID string, limit int) ([]types.Comment, error)
	TopLevelComments(ctx context.Context, postID string, limit int) ([]types.Comment, error)
	CountPostComments(ctx context.Context, postID, authorID string) (int, error)
	CountThreadReplies(ctx context.Context, threadRootID, authorID string) (int, error)

	// Runtime state. A missing document yields a normalized empty state.
	RuntimeState(ctx context.Context, botID string) (types.RuntimeState, error)
	SaveRuntimeState(ctx context.Context, st types.RuntimeState) error

	// Global comment state, shared across the whole roster. A missing
	// document yields normalized defaults.
	GlobalState(ctx context.Context) (types.GlobalCommentState, error)
	SaveGlobalState(ctx context.Context, g types.GlobalCommentState) error

	// Likes are idempotent; the bool reports whether the like was new.
	LikePost(ctx context.Context, postID, botID string) (bool, error)
	LikeComment(ctx context.Context, commentID, botID string) (bool, error)

	// Notifications.
	CreateNotification(ctx context.Context, n types.Notification) (string, error)
	BotNotifications(ctx context.Context, botID string, limit int) ([]types.Notification, error)
	MarkNotificationHandled(ctx context.Context, id string) error
}
