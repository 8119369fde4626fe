package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillpost/botengine/pkg/types"
)

// Memory is an in-memory Store for tests and offline simulation.
type Memory struct {
	mu sync.RWMutex

	bots          map[string]types.BotProfile
	actions       map[string]types.ScheduledAction
	posts         map[string]types.Post
	comments      map[string]types.Comment
	runtime       map[string]types.RuntimeState
	global        types.GlobalCommentState
	notifications map[string]types.Notification
	postLikes     map[string]map[string]bool // postID -> botID set
	commentLikes  map[string]map[string]bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bots:          make(map[string]types.BotProfile),
		actions:       make(map[string]types.ScheduledAction),
		posts:         make(map[string]types.Post),
		comments:      make(map[string]types.Comment),
		runtime:       make(map[string]types.RuntimeState),
		notifications: make(map[string]types.Notification),
		postLikes:     make(map[string]map[string]bool),
		commentLikes:  make(map[string]map[string]bool),
	}
}

func (m *Memory) GetBot(_ context.Context, id string) (types.BotProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bot, ok := m.bots[id]
	if !ok {
		return types.BotProfile{}, ErrNotFound
	}
	return types.NormalizeBot(bot), nil
}

func (m *Memory) PutBot(_ context.Context, bot types.BotProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	m.bots[bot.ID] = bot
	return nil
}

func (m *Memory) ListActiveBots(_ context.Context) ([]types.BotProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.BotProfile, 0, len(m.bots))
	for _, b := range m.bots {
		if b.Active {
			out = append(out, types.NormalizeBot(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetBotLastEngaged(_ context.Context, botID string, atMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bot, ok := m.bots[botID]
	if !ok {
		return ErrNotFound
	}
	bot.LastEngagedAtMs = atMs
	m.bots[botID] = bot
	return nil
}

func (m *Memory) CreateAction(_ context.Context, a types.ScheduledAction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.actions[a.ID] = a
	return a.ID, nil
}

func (m *Memory) UpdateAction(_ context.Context, a types.ScheduledAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actions[a.ID]; !ok {
		return ErrNotFound
	}
	m.actions[a.ID] = a
	return nil
}

func (m *Memory) DeleteAction(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, id)
	return nil
}

func (m *Memory) DueActions(_ context.Context, nowMs int64, limit int) ([]types.ScheduledAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	due := make([]types.ScheduledAction, 0)
	for _, a := range m.actions {
		if a.ScheduledAtMs <= nowMs {
			due = append(due, a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAtMs != due[j].ScheduledAtMs {
			return due[i].ScheduledAtMs < due[j].ScheduledAtMs
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) GetPost(_ context.Context, id string) (types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return types.Post{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) PutPost(_ context.Context, p types.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.posts[p.ID] = p
	return nil
}

func (m *Memory) ListRecentPosts(_ context.Context, limit int) ([]types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) IncrementPostComments(_ context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.CommentCount++
	m.posts[postID] = p
	return nil
}

func (m *Memory) CreateComment(_ context.Context, c types.Comment) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt
	m.comments[c.ID] = c
	return c.ID, nil
}

func (m *Memory) GetComment(_ context.Context, id string) (types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.comments[id]
	if !ok {
		return types.Comment{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) IncrementReplyCount(_ context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.ReplyCount++
	c.UpdatedAt = time.Now()
	m.comments[commentID] = c
	return nil
}

func (m *Memory) ThreadComments(_ context.Context, threadRootID string, limit int) ([]types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Comment, 0)
	for _, c := range m.comments {
		if c.ID == threadRootID || c.ThreadRootCommentID == threadRootID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) TopLevelComments(_ context.Context, postID string, limit int) ([]types.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Comment, 0)
	for _, c := range m.comments {
		if c.PostID == postID && c.ParentCommentID == "" {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CountPostComments(_ context.Context, postID, authorID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.comments {
		if c.PostID == postID && c.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountThreadReplies(_ context.Context, threadRootID, authorID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.comments {
		if c.ThreadRootCommentID == threadRootID && c.AuthorID == authorID && c.ParentCommentID != "" {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RuntimeState(_ context.Context, botID string) (types.RuntimeState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.NormalizeRuntimeState(m.runtime[botID], botID), nil
}

func (m *Memory) SaveRuntimeState(_ context.Context, st types.RuntimeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtime[st.BotID] = st
	return nil
}

func (m *Memory) GlobalState(_ context.Context) (types.GlobalCommentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.NormalizeGlobal(m.global), nil
}

func (m *Memory) SaveGlobalState(_ context.Context, g types.GlobalCommentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.global = g
	return nil
}

func (m *Memory) LikePost(_ context.Context, postID, botID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return false, ErrNotFound
	}
	likes := m.postLikes[postID]
	if likes == nil {
		likes = make(map[string]bool)
		m.postLikes[postID] = likes
	}
	if likes[botID] {
		return false, nil
	}
	likes[botID] = true
	return true, nil
}

func (m *Memory) LikeComment(_ context.Context, commentID, botID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comments[commentID]; !ok {
		return false, ErrNotFound
	}
	likes := m.commentLikes[commentID]
	if likes == nil {
		likes = make(map[string]bool)
		m.commentLikes[commentID] = likes
	}
	if likes[botID] {
		return false, nil
	}
	likes[botID] = true
	return true, nil
}

func (m *Memory) CreateNotification(_ context.Context, n types.Notification) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications[n.ID] = n
	return n.ID, nil
}

func (m *Memory) BotNotifications(_ context.Context, botID string, limit int) ([]types.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Notification, 0)
	for _, n := range m.notifications {
		if n.RecipientID == botID && !n.Handled {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkNotificationHandled(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Handled = true
	m.notifications[id] = n
	return nil
}
