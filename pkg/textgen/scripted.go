package textgen

import (
	"context"
	"fmt"

	"github.com/quillpost/botengine/pkg/types"
)

// Scripted is a deterministic generator for tests and offline simulation.
// Responses pop off a queue when provided, otherwise a canned line is
// derived from the request.
type Scripted struct {
	queue []string
	calls []Request
	err   error
}

// NewScripted creates a generator that replies with the given responses in
// order, then falls back to derived text.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{queue: responses}
}

// Fail makes every subsequent Generate call return err.
func (s *Scripted) Fail(err error) { s.err = err }

// Calls returns the requests seen so far.
func (s *Scripted) Calls() []Request { return s.calls }

func (s *Scripted) Generate(_ context.Context, req Request) (string, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return "", s.err
	}
	if len(s.queue) > 0 {
		out := s.queue[0]
		s.queue = s.queue[1:]
		return out, nil
	}
	if req.Mode == types.ModeReply && req.Parent != nil {
		return fmt.Sprintf("%s replying to %s on %q", req.Persona.DisplayName, req.Parent.AuthorName, req.Post.Title), nil
	}
	return fmt.Sprintf("%s commenting on %q", req.Persona.DisplayName, req.Post.Title), nil
}
