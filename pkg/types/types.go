// Package types defines core types for the Quillpost bot engagement engine.
package types

import "time"

// ActionKind identifies a scheduled engagement action.
type ActionKind string

const (
	ActionCommentOnPost  ActionKind = "COMMENT_ON_POST"
	ActionReplyToComment ActionKind = "REPLY_TO_COMMENT"
	ActionLikePost       ActionKind = "LIKE_POST"
	ActionLikeComment    ActionKind = "LIKE_COMMENT"
)

// Action weight keys used in BehaviorConfig.ActionWeights. Weights are
// relative, never normalized; a map with no positive entries selects nothing.
const (
	WeightCommentOnPost  = "commentOnPost"
	WeightReplyToComment = "replyToComment" // aka commentOnComment
	WeightLikePostOnly   = "likePostOnly"
	WeightLikeAndComment = "likeAndComment"
	WeightIgnore         = "ignore"
)

// GenerationMode selects what kind of comment text to generate.
type GenerationMode string

const (
	ModeTopLevel GenerationMode = "TOP_LEVEL"
	ModeReply    GenerationMode = "REPLY"
)

// Metadata keys carried on a ScheduledAction.
const (
	MetaTrigger      = "trigger"       // "tick", "direct_reply" or "mention"
	MetaForcedMode   = "forced_mode"   // GenerationMode to honor unconditionally
	MetaForcedTarget = "forced_target" // comment id to reply to
	MetaLikeFirst    = "like_first"    // "true" when a like precedes the comment
)

// Trigger values for MetaTrigger.
const (
	TriggerTick        = "tick"
	TriggerDirectReply = "direct_reply"
	TriggerMention     = "mention"
)

// DelayRange bounds a random scheduling delay in minutes.
type DelayRange struct {
	MinMinutes int `json:"min_minutes"`
	MaxMinutes int `json:"max_minutes"`
}

// CommentLimits caps a bot's top-level comment volume. Zero means unlimited.
type CommentLimits struct {
	PerHour int `json:"per_hour,omitempty"`
	PerDay  int `json:"per_day,omitempty"`
	PerPost int `json:"per_post,omitempty"`
}

// ActiveWindow restricts a bot to a local-time window. End before start
// means the window wraps past midnight.
type ActiveWindow struct {
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM", exclusive
	Timezone string `json:"timezone,omitempty"`
}

// BehaviorConfig tunes how a bot decides to engage.
type BehaviorConfig struct {
	BaseResponseProbability  float64            `json:"base_response_probability"`
	ReplyResponseProbability float64            `json:"reply_response_probability"`
	PostDelay                DelayRange         `json:"post_delay"`
	ReplyDelay               DelayRange         `json:"reply_delay"`
	ActionWeights            map[string]float64 `json:"action_weights"`
	MaxCommentsPerPost       int                `json:"max_comments_per_post,omitempty"`
	MaxRepliesPerThread      int                `json:"max_replies_per_thread,omitempty"`
	CommentLimits            *CommentLimits     `json:"comment_limits,omitempty"`
	TypoChance               float64            `json:"typo_chance,omitempty"`
	MaxTyposPerComment       int                `json:"max_typos_per_comment,omitempty"`
	ActiveWindow             *ActiveWindow      `json:"active_window,omitempty"`
}

// BotProfile is a synthetic persona on the roster.
type BotProfile struct {
	ID               string             `json:"id"`
	DisplayName      string             `json:"display_name"`
	Active           bool               `json:"active"`
	Likes            []string           `json:"likes,omitempty"`
	Dislikes         []string           `json:"dislikes,omitempty"`
	TopicPreferences map[string]float64 `json:"topic_preferences,omitempty"`
	Behavior         BehaviorConfig     `json:"behavior"`
	Voice            string             `json:"voice,omitempty"` // free-form persona description for generation
	LastEngagedAtMs  int64              `json:"last_engaged_at_ms,omitempty"`
}

// ScheduledAction is a pending engagement created by the tick scheduler or
// a reply/mention trigger, consumed exactly once by the processor.
type ScheduledAction struct {
	ID                  string            `json:"id"`
	Kind                ActionKind        `json:"kind"`
	BotID               string            `json:"bot_id"`
	PostID              string            `json:"post_id"`
	ParentCommentID     string            `json:"parent_comment_id,omitempty"`
	ThreadRootCommentID string            `json:"thread_root_comment_id,omitempty"`
	ScheduledAtMs       int64             `json:"scheduled_at_ms"`
	Attempts            int               `json:"attempts"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// TopLevelCommentStats tracks a bot's rolling top-level comment windows.
type TopLevelCommentStats struct {
	HourWindowStartMs       int64 `json:"hour_window_start_ms,omitempty"`
	HourCount               int   `json:"hour_count,omitempty"`
	DayWindowStartMs        int64 `json:"day_window_start_ms,omitempty"`
	DayCount                int   `json:"day_count,omitempty"`
	LastTopLevelCommentAtMs int64 `json:"last_top_level_comment_at_ms,omitempty"`
}

// RuntimeState is the per-bot scheduling state, mutated only by the tick
// scheduler.
type RuntimeState struct {
	BotID                   string               `json:"bot_id"`
	LastActionScheduledAtMs int64                `json:"last_action_scheduled_at_ms,omitempty"`
	TopLevel                TopLevelCommentStats `json:"top_level_comment_stats"`
}

// GlobalCommentState caps community-wide comment volume. Shared across all
// bots evaluated within one tick invocation.
type GlobalCommentState struct {
	CommentsScheduledThisTick int   `json:"comments_scheduled_this_tick"`
	HourWindowStartMs         int64 `json:"hour_window_start_ms,omitempty"`
	HourCount                 int   `json:"hour_count,omitempty"`
	DayWindowStartMs          int64 `json:"day_window_start_ms,omitempty"`
	DayCount                  int   `json:"day_count,omitempty"`
	PerTickLimit              int   `json:"per_tick_limit"`
	PerHourLimit              int   `json:"per_hour_limit"`
}

// Post is a published article on the site.
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Summary      string    `json:"summary,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	Published    bool      `json:"published"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Comment is a top-level comment or a threaded reply.
type Comment struct {
	ID                  string    `json:"id"`
	PostID              string    `json:"post_id"`
	Content             string    `json:"content"`
	AuthorID            string    `json:"author_id"`
	AuthorName          string    `json:"author_name"`
	AuthorIsBot         bool      `json:"author_is_bot,omitempty"`
	ParentCommentID     string    `json:"parent_comment_id,omitempty"`
	ThreadRootCommentID string    `json:"thread_root_comment_id,omitempty"`
	ReplyCount          int       `json:"reply_count"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Notification records that someone engaged with a comment. Direct replies
// to a bot's comment carry the bot's id in ParentAuthorID and feed the
// scheduler's reply fast path.
type Notification struct {
	ID                  string    `json:"id"`
	RecipientID         string    `json:"recipient_id"`
	PostID              string    `json:"post_id"`
	CommentID           string    `json:"comment_id,omitempty"`
	ParentCommentID     string    `json:"parent_comment_id,omitempty"`
	ParentAuthorID      string    `json:"parent_author_id,omitempty"`
	ThreadRootCommentID string    `json:"thread_root_comment_id,omitempty"`
	Text                string    `json:"text,omitempty"`
	Handled             bool      `json:"handled,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// ThreadEntry is one comment inside an assembled thread context. Built fresh
// per processing call, never persisted.
type ThreadEntry struct {
	ID                  string `json:"id"`
	AuthorID            string `json:"author_id"`
	AuthorName          string `json:"author_name"`
	Content             string `json:"content"`
	ParentCommentID     string `json:"parent_comment_id,omitempty"`
	ThreadRootCommentID string `json:"thread_root_comment_id,omitempty"`
	Depth               int    `json:"depth"`
	IsTarget            bool   `json:"is_target,omitempty"`
	IsThreadRoot        bool   `json:"is_thread_root,omitempty"`
}
