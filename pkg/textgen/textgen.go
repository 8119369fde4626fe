// Package textgen produces comment text for bot personas. The engine treats
// generation as a collaborator behind the Generator interface; the Gemini
// implementation talks to the real model and Scripted serves tests and
// offline simulation.
package textgen

import (
	"context"

	"github.com/quillpost/botengine/pkg/types"
)

// Request carries everything a generator needs to produce one comment.
type Request struct {
	Persona types.BotProfile
	Mode    types.GenerationMode
	Post    types.Post

	// Reply-mode fields. Parent is the comment being replied to; Thread and
	// Path give surrounding context, Path ordered root to leaf.
	Parent *types.Comment
	Thread []types.ThreadEntry
	Path   []types.ThreadEntry
}

// Generator produces comment text in a persona's voice.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
