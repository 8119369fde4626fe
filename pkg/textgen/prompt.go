package textgen

import (
	"fmt"
	"strings"

	"github.com/quillpost/botengine/pkg/types"
)

// BuildPrompt renders a generation request into a single prompt string.
// Top-level mode shows the post; reply mode additionally shows the thread
// path and marks the comment being replied to.
func BuildPrompt(req Request) string {
	var sb strings.Builder

	sb.WriteString("You are a community member commenting on a blog post.\n")
	sb.WriteString(fmt.Sprintf("Your name is %s.\n", req.Persona.DisplayName))
	if req.Persona.Voice != "" {
		sb.WriteString("Your voice and personality: ")
		sb.WriteString(req.Persona.Voice)
		sb.WriteString("\n")
	}
	if len(req.Persona.Likes) > 0 {
		sb.WriteString("Topics you care about: ")
		sb.WriteString(strings.Join(req.Persona.Likes, ", "))
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Post\n")
	sb.WriteString("Title: ")
	sb.WriteString(req.Post.Title)
	sb.WriteString("\n")
	if req.Post.Summary != "" {
		sb.WriteString("Summary: ")
		sb.WriteString(req.Post.Summary)
		sb.WriteString("\n")
	}
	if req.Post.Content != "" {
		sb.WriteString("\n")
		sb.WriteString(req.Post.Content)
		sb.WriteString("\n")
	}

	if req.Mode == types.ModeReply {
		writeReplyContext(&sb, req)
		sb.WriteString("\nWrite a short reply to the marked comment, in your own voice. ")
		sb.WriteString("Reply with the comment text only, no quoting and no preamble.\n")
	} else {
		sb.WriteString("\nWrite a short top-level comment on this post, in your own voice. ")
		sb.WriteString("Reply with the comment text only, no preamble.\n")
	}

	return sb.String()
}

func writeReplyContext(sb *strings.Builder, req Request) {
	if len(req.Path) > 0 {
		sb.WriteString("\n## Conversation so far\n")
		for _, e := range req.Path {
			indent := strings.Repeat("  ", e.Depth)
			marker := ""
			if e.IsTarget {
				marker = " <- you are replying to this"
			}
			sb.WriteString(fmt.Sprintf("%s%s: %s%s\n", indent, e.AuthorName, e.Content, marker))
		}
	} else if req.Parent != nil {
		sb.WriteString("\n## Comment you are replying to\n")
		sb.WriteString(fmt.Sprintf("%s: %s\n", req.Parent.AuthorName, req.Parent.Content))
	}

	if len(req.Thread) > 0 {
		sb.WriteString("\n## Other recent comments in this thread\n")
		for _, e := range req.Thread {
			if e.IsTarget {
				continue
			}
			sb.WriteString(fmt.Sprintf("- %s: %s\n", e.AuthorName, e.Content))
		}
	}
}
