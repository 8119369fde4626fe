package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keshon/datastore"

	"github.com/quillpost/botengine/pkg/types"
)

// Collection keys inside the datastore file. Each holds one aggregate
// document: a map of id to entity.
const (
	colBots          = "bots"
	colActions       = "actions"
	colPosts         = "posts"
	colComments      = "comments"
	colRuntime       = "runtime"
	colGlobal        = "global_comment_state"
	colNotifications = "notifications"
	colPostLikes     = "post_likes"
	colCommentLikes  = "comment_likes"
)

// DocStore is a Store persisted through an embedded JSON document store.
// The engine is externally serialized to at most one active invocation, so
// a single read-modify-write mutex per process is enough.
type DocStore struct {
	mu     sync.Mutex
	ds     *datastore.DataStore
	cancel context.CancelFunc
}

// Open creates or loads a DocStore at the given file path. The datastore's
// autosave goroutine is bound to ctx and stopped on Close.
func Open(ctx context.Context, path string) (*DocStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create datastore directory: %w", err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	ds, err := datastore.New(ctx, path)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	return &DocStore{ds: ds, cancel: cancel}, nil
}

// Close stops the autosave goroutine and performs a final save.
func (s *DocStore) Close() error {
	s.cancel()
	return s.ds.Close()
}

// collection loads the stored aggregate into a typed map. A missing key
// yields an empty map.
func collection[T any](ds *datastore.DataStore, key string) (map[string]T, error) {
	out := map[string]T{}
	if _, err := ds.Get(key, &out); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", key, err)
	}
	return out, nil
}

func (s *DocStore) GetBot(_ context.Context, id string) (types.BotProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, err := collection[types.BotProfile](s.ds, colBots)
	if err != nil {
		return types.BotProfile{}, err
	}
	bot, ok := bots[id]
	if !ok {
		return types.BotProfile{}, ErrNotFound
	}
	return types.NormalizeBot(bot), nil
}

func (s *DocStore) PutBot(_ context.Context, bot types.BotProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, err := collection[types.BotProfile](s.ds, colBots)
	if err != nil {
		return err
	}
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	bots[bot.ID] = bot
	return s.ds.Set(colBots, bots)
}

func (s *DocStore) ListActiveBots(_ context.Context) ([]types.BotProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, err := collection[types.BotProfile](s.ds, colBots)
	if err != nil {
		return nil, err
	}
	out := make([]types.BotProfile, 0, len(bots))
	for _, b := range bots {
		if b.Active {
			out = append(out, types.NormalizeBot(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DocStore) SetBotLastEngaged(_ context.Context, botID string, atMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bots, err := collection[types.BotProfile](s.ds, colBots)
	if err != nil {
		return err
	}
	bot, ok := bots[botID]
	if !ok {
		return ErrNotFound
	}
	bot.LastEngagedAtMs = atMs
	bots[botID] = bot
	return s.ds.Set(colBots, bots)
}

func (s *DocStore) CreateAction(_ context.Context, a types.ScheduledAction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := collection[types.ScheduledAction](s.ds, colActions)
	if err != nil {
		return "", err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	actions[a.ID] = a
	if err := s.ds.Set(colActions, actions); err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *DocStore) UpdateAction(_ context.Context, a types.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := collection[types.ScheduledAction](s.ds, colActions)
	if err != nil {
		return err
	}
	if _, ok := actions[a.ID]; !ok {
		return ErrNotFound
	}
	actions[a.ID] = a
	return s.ds.Set(colActions, actions)
}

func (s *DocStore) DeleteAction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := collection[types.ScheduledAction](s.ds, colActions)
	if err != nil {
		return err
	}
	delete(actions, id)
	return s.ds.Set(colActions, actions)
}

func (s *DocStore) DueActions(_ context.Context, nowMs int64, limit int) ([]types.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions, err := collection[types.ScheduledAction](s.ds, colActions)
	if err != nil {
		return nil, err
	}
	due := make([]types.ScheduledAction, 0)
	for _, a := range actions {
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

func (s *DocStore) GetPost(_ context.Context, id string) (types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := collection[types.Post](s.ds, colPosts)
	if err != nil {
		return types.Post{}, err
	}
	p, ok := posts[id]
	if !ok {
		return types.Post{}, ErrNotFound
	}
	return p, nil
}

func (s *DocStore) PutPost(_ context.Context, p types.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := collection[types.Post](s.ds, colPosts)
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	posts[p.ID] = p
	return s.ds.Set(colPosts, posts)
}

func (s *DocStore) ListRecentPosts(_ context.Context, limit int) ([]types.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := collection[types.Post](s.ds, colPosts)
	if err != nil {
		return nil, err
	}
	out := make([]types.Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *DocStore) IncrementPostComments(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	posts, err := collection[types.Post](s.ds, colPosts)
	if err != nil {
		return err
	}
	p, ok := posts[postID]
	if !ok {
		return ErrNotFound
	}
	p.CommentCount++
	posts[postID] = p
	return s.ds.Set(colPosts, posts)
}

func (s *DocStore) CreateComment(_ context.Context, c types.Comment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return "", err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt
	comments[c.ID] = c
	if err := s.ds.Set(colComments, comments); err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *DocStore) GetComment(_ context.Context, id string) (types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return types.Comment{}, err
	}
	c, ok := comments[id]
	if !ok {
		return types.Comment{}, ErrNotFound
	}
	return c, nil
}

func (s *DocStore) IncrementReplyCount(_ context.Context, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return err
	}
	c, ok := comments[commentID]
	if !ok {
		return ErrNotFound
	}
	c.ReplyCount++
	c.UpdatedAt = time.Now()
	comments[commentID] = c
	return s.ds.Set(colComments, comments)
}

func (s *DocStore) ThreadComments(_ context.Context, threadRootID string, limit int) ([]types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return nil, err
	}
	out := make([]types.Comment, 0)
	for _, c := range comments {
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

func (s *DocStore) TopLevelComments(_ context.Context, postID string, limit int) ([]types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return nil, err
	}
	out := make([]types.Comment, 0)
	for _, c := range comments {
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

func (s *DocStore) CountPostComments(_ context.Context, postID, authorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range comments {
		if c.PostID == postID && c.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *DocStore) CountThreadReplies(_ context.Context, threadRootID, authorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments, err := collection[types.Comment](s.ds, colComments)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range comments {
		if c.ThreadRootCommentID == threadRootID && c.AuthorID == authorID && c.ParentCommentID != "" {
			n++
		}
	}
	return n, nil
}

func (s *DocStore) RuntimeState(_ context.Context, botID string) (types.RuntimeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := collection[types.RuntimeState](s.ds, colRuntime)
	if err != nil {
		return types.RuntimeState{}, err
	}
	return types.NormalizeRuntimeState(states[botID], botID), nil
}

func (s *DocStore) SaveRuntimeState(_ context.Context, st types.RuntimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	states, err := collection[types.RuntimeState](s.ds, colRuntime)
	if err != nil {
		return err
	}
	states[st.BotID] = st
	return s.ds.Set(colRuntime, states)
}

func (s *DocStore) GlobalState(_ context.Context) (types.GlobalCommentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var g types.GlobalCommentState
	if _, err := s.ds.Get(colGlobal, &g); err != nil {
		return types.GlobalCommentState{}, fmt.Errorf("load global state: %w", err)
	}
	return types.NormalizeGlobal(g), nil
}

func (s *DocStore) SaveGlobalState(_ context.Context, g types.GlobalCommentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds.Set(colGlobal, g)
}

func (s *DocStore) LikePost(_ context.Context, postID, botID string) (bool, error) {
	return s.like(colPostLikes, colPosts, postID, botID)
}

func (s *DocStore) LikeComment(_ context.Context, commentID, botID string) (bool, error) {
	return s.like(colCommentLikes, colComments, commentID, botID)
}

func (s *DocStore) like(likeCol, entityCol, entityID, botID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.entityExists(entityCol, entityID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrNotFound
	}

	likes, err := collection[map[string]bool](s.ds, likeCol)
	if err != nil {
		return false, err
	}
	set := likes[entityID]
	if set == nil {
		set = make(map[string]bool)
	}
	if set[botID] {
		return false, nil
	}
	set[botID] = true
	likes[entityID] = set
	if err := s.ds.Set(likeCol, likes); err != nil {
		return false, err
	}
	return true, nil
}

func (s *DocStore) entityExists(col, id string) (bool, error) {
	switch col {
	case colPosts:
		posts, err := collection[types.Post](s.ds, col)
		if err != nil {
			return false, err
		}
		_, ok := posts[id]
		return ok, nil
	case colComments:
		comments, err := collection[types.Comment](s.ds, col)
		if err != nil {
			return false, err
		}
		_, ok := comments[id]
		return ok, nil
	}
	return false, fmt.Errorf("unknown collection %s", col)
}

func (s *DocStore) CreateNotification(_ context.Context, n types.Notification) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications, err := collection[types.Notification](s.ds, colNotifications)
	if err != nil {
		return "", err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	notifications[n.ID] = n
	if err := s.ds.Set(colNotifications, notifications); err != nil {
		return "", err
	}
	return n.ID, nil
}

func (s *DocStore) BotNotifications(_ context.Context, botID string, limit int) ([]types.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications, err := collection[types.Notification](s.ds, colNotifications)
	if err != nil {
		return nil, err
	}
	out := make([]types.Notification, 0)
	for _, n := range notifications {
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

func (s *DocStore) MarkNotificationHandled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	notifications, err := collection[types.Notification](s.ds, colNotifications)
	if err != nil {
		return err
	}
	n, ok := notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Handled = true
	notifications[id] = n
	return s.ds.Set(colNotifications, notifications)
}
