package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/quillpost/botengine/pkg/types"
)

const plannerAppName = "botengine-planner"

const plannerInstruction = `You decide how a community member should engage with a blog post.

You are given the post, its existing top-level comments with ids, and the
member's persona. Decide whether the member should start a new top-level
thread or reply to one of the existing comments.

Respond with a single JSON object and nothing else:
{"mode": "TOP_LEVEL" | "REPLY", "target_comment_id": "<id or empty>", "reason": "<short reason>"}

Rules:
- "target_comment_id" must be one of the listed comment ids, and only when mode is "REPLY".
- Prefer "REPLY" when an existing comment clearly overlaps the persona's interests.
- Prefer "TOP_LEVEL" when the persona would add a genuinely new angle.`

// ADK plans through an LLM agent. Malformed model output degrades to a
// TOP_LEVEL recommendation rather than an error.
type ADK struct {
	runner  *runner.Runner
	session session.Service
	log     *slog.Logger
}

// NewADK builds the planning agent around the given model.
func NewADK(m model.LLM, log *slog.Logger) (*ADK, error) {
	if log == nil {
		log = slog.Default()
	}

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "engagement-planner",
		Model:       m,
		Description: "Recommends thread placement for bot engagements",
		Instruction: plannerInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create planner agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        plannerAppName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create planner runner: %w", err)
	}

	return &ADK{runner: r, session: sessionService, log: log.With("component", "planner")}, nil
}

func (p *ADK) Plan(ctx context.Context, req Request) (Recommendation, error) {
	if len(req.TopLevel) == 0 {
		return Recommendation{Mode: types.ModeTopLevel, Reason: "no_existing_threads"}, nil
	}

	userID := req.Persona.ID
	if userID == "" {
		userID = "anonymous"
	}
	sessionID := uuid.NewString()
	if _, err := p.session.Create(ctx, &session.CreateRequest{
		AppName:   plannerAppName,
		UserID:    userID,
		SessionID: sessionID,
		State:     map[string]any{},
	}); err != nil {
		return Recommendation{}, fmt.Errorf("failed to create planner session: %w", err)
	}

	msg := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildPlanningPrompt(req)}},
	}

	var responseText strings.Builder
	for event, err := range p.runner.Run(ctx, userID, sessionID, msg, agent.RunConfig{}) {
		if err != nil {
			return Recommendation{}, fmt.Errorf("planner agent run: %w", err)
		}
		if event == nil || event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			if part.Text != "" {
				responseText.WriteString(part.Text)
			}
		}
	}

	rec, ok := parseRecommendation(responseText.String())
	if !ok {
		p.log.Warn("unparseable planner output, defaulting to top level",
			"post", req.Post.ID, "output_len", responseText.Len())
		return Recommendation{Mode: types.ModeTopLevel, Reason: "planner_output_unparseable"}, nil
	}
	return Sanitize(rec, req.TopLevel), nil
}

func buildPlanningPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("## Post\n")
	sb.WriteString("Title: ")
	sb.WriteString(req.Post.Title)
	sb.WriteString("\n")
	if req.Post.Summary != "" {
		sb.WriteString("Summary: ")
		sb.WriteString(req.Post.Summary)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Existing top-level comments\n")
	for _, c := range req.TopLevel {
		sb.WriteString(fmt.Sprintf("- id=%s author=%s replies=%d: %s\n", c.ID, c.AuthorName, c.ReplyCount, c.Content))
	}

	sb.WriteString("\n## Persona\n")
	sb.WriteString("Name: ")
	sb.WriteString(req.Persona.DisplayName)
	sb.WriteString("\n")
	if req.Persona.Voice != "" {
		sb.WriteString("Voice: ")
		sb.WriteString(req.Persona.Voice)
		sb.WriteString("\n")
	}
	if len(req.Persona.Likes) > 0 {
		sb.WriteString("Interests: ")
		sb.WriteString(strings.Join(req.Persona.Likes, ", "))
		sb.WriteString("\n")
	}
	if req.Intent != "" {
		sb.WriteString("Intent: ")
		sb.WriteString(req.Intent)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseRecommendation extracts the first JSON object from model output,
// tolerating code fences and surrounding prose.
func parseRecommendation(output string) (Recommendation, bool) {
	start := strings.Index(output, "{")
	end := strings.LastIndex(output, "}")
	if start < 0 || end <= start {
		return Recommendation{}, false
	}

	var parsed struct {
		Mode            string `json:"mode"`
		TargetCommentID string `json:"target_comment_id"`
		Reason          string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(output[start:end+1]), &parsed); err != nil {
		return Recommendation{}, false
	}
	return Recommendation{
		Mode:            types.GenerationMode(strings.ToUpper(strings.TrimSpace(parsed.Mode))),
		TargetCommentID: parsed.TargetCommentID,
		Reason:          parsed.Reason,
	}, true
}
