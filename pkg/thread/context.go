// Package thread assembles conversation context around a comment so reply
// generation can see the discussion it is joining. Context is built fresh
// per call and never persisted.
package thread

import (
	"sort"

	"github.com/quillpost/botengine/pkg/types"
)

// Default caps on how much of a thread feeds a prompt.
const (
	DefaultRecentLimit = 30
	DefaultPathLimit   = 8
)

// Lookup resolves a comment by id from whatever set the caller holds.
type Lookup func(id string) (types.Comment, bool)

// MapLookup builds a Lookup over a comment slice.
func MapLookup(comments []types.Comment) Lookup {
	byID := make(map[string]types.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}
	return func(id string) (types.Comment, bool) {
		c, ok := byID[id]
		return c, ok
	}
}

// BuildContext selects the newest recentLimit comments of a thread plus the
// target, its parent, and the thread root, which are always included. The
// result is ordered oldest first with depths resolved against the full
// comment set.
func BuildContext(comments []types.Comment, target types.Comment, recentLimit int) []types.ThreadEntry {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	lookup := MapLookup(comments)
	rootID := types.ThreadRootOf(target)

	sorted := make([]types.Comment, len(comments))
	copy(sorted, comments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	keep := make(map[string]bool, recentLimit+3)
	for i := 0; i < len(sorted) && i < recentLimit; i++ {
		keep[sorted[i].ID] = true
	}
	keep[target.ID] = true
	if target.ParentCommentID != "" {
		keep[target.ParentCommentID] = true
	}
	keep[rootID] = true

	// sorted is newest first; walk it backwards for an oldest-first result.
	memo := make(map[string]int)
	entries := make([]types.ThreadEntry, 0, len(keep))
	for i := len(sorted) - 1; i >= 0; i-- {
		c := sorted[i]
		if !keep[c.ID] {
			continue
		}
		entries = append(entries, entry(c, target.ID, rootID, lookup, memo))
	}
	return entries
}

// BuildPath returns the ancestor chain ending at target, ordered root to
// leaf and truncated to the nearest maxLen comments. Depth is the position
// within the returned path.
func BuildPath(lookup Lookup, target types.Comment, maxLen int) []types.ThreadEntry {
	if maxLen <= 0 {
		maxLen = DefaultPathLimit
	}

	chain := []types.Comment{target}
	seen := map[string]bool{target.ID: true}
	cur := target
	for len(chain) < maxLen && cur.ParentCommentID != "" {
		parent, ok := lookup(cur.ParentCommentID)
		if !ok || seen[parent.ID] {
			break
		}
		chain = append(chain, parent)
		seen[parent.ID] = true
		cur = parent
	}

	rootID := types.ThreadRootOf(target)
	path := make([]types.ThreadEntry, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		e := types.ThreadEntry{
			ID:                  c.ID,
			AuthorID:            c.AuthorID,
			AuthorName:          c.AuthorName,
			Content:             c.Content,
			ParentCommentID:     c.ParentCommentID,
			ThreadRootCommentID: c.ThreadRootCommentID,
			Depth:               len(path),
			IsTarget:            c.ID == target.ID,
			IsThreadRoot:        c.ID == rootID,
		}
		path = append(path, e)
	}
	return path
}

func entry(c types.Comment, targetID, rootID string, lookup Lookup, memo map[string]int) types.ThreadEntry {
	return types.ThreadEntry{
		ID:                  c.ID,
		AuthorID:            c.AuthorID,
		AuthorName:          c.AuthorName,
		Content:             c.Content,
		ParentCommentID:     c.ParentCommentID,
		ThreadRootCommentID: c.ThreadRootCommentID,
		Depth:               depthOf(lookup, c, memo),
		IsTarget:            c.ID == targetID,
		IsThreadRoot:        c.ID == rootID,
	}
}

// depthOf counts parent hops to the thread root. A missing parent, a
// self-parent, or a parent cycle collapses the depth to zero rather than
// failing the whole context build.
func depthOf(lookup Lookup, c types.Comment, memo map[string]int) int {
	if d, ok := memo[c.ID]; ok {
		return d
	}

	depth := 0
	seen := map[string]bool{c.ID: true}
	cur := c
	for cur.ParentCommentID != "" {
		if cur.ParentCommentID == cur.ID {
			return 0
		}
		parent, ok := lookup(cur.ParentCommentID)
		if !ok || seen[parent.ID] {
			return 0
		}
		if d, ok := memo[parent.ID]; ok {
			depth += d + 1
			memo[c.ID] = depth
			return depth
		}
		seen[parent.ID] = true
		depth++
		cur = parent
	}
	memo[c.ID] = depth
	return depth
}
