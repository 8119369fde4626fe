// The simulate binary runs the engagement loops offline: in-memory store,
// scripted text generation, heuristic planning, and a stepped clock. Useful
// for eyeballing scheduling behavior without an API key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/quillpost/botengine/pkg/engine"
	"github.com/quillpost/botengine/pkg/planner"
	"github.com/quillpost/botengine/pkg/roster"
	"github.com/quillpost/botengine/pkg/store"
	"github.com/quillpost/botengine/pkg/textgen"
	"github.com/quillpost/botengine/pkg/types"
)

func main() {
	_ = godotenv.Load()

	ticks := flag.Int("ticks", 100, "Number of simulation ticks")
	step := flag.Duration("step", 5*time.Minute, "Simulated time per tick")
	botCount := flag.Int("bots", 5, "Number of bots on the roster")
	seed := flag.Int64("seed", 42, "Random seed")
	logPath := flag.String("log", "", "Optional JSONL event log path")
	flag.Parse()

	fmt.Println("=== Quillpost Engagement Simulation ===")
	fmt.Printf("Bots: %d\n", *botCount)
	fmt.Printf("Ticks: %d (step %s)\n\n", *ticks, *step)

	ctx := context.Background()
	rng := rand.New(rand.NewSource(*seed))
	mem := store.NewMemory()

	simTime := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return simTime }

	var events engine.EventLogger
	if *logPath != "" {
		logger, err := engine.NewJSONLLogger(*logPath)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer logger.Close()
		events = logger
	}

	eng := engine.New(engine.Config{
		Store:     mem,
		Generator: textgen.NewScripted(),
		Planner:   planner.NewHeuristic(rand.New(rand.NewSource(*seed + 1))),
		Rand:      rng,
		Log:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
		Events:    events,
		Now:       clock,
	})

	bots := roster.GenerateProfiles(*botCount, *seed)
	for _, bot := range bots {
		if err := mem.PutBot(ctx, types.NormalizeBot(bot)); err != nil {
			log.Fatalf("Failed to add bot %s: %v", bot.ID, err)
		}
	}
	seedPosts(ctx, mem, simTime)

	var totals struct {
		engaged, ignored, errors, likes int
	}
	start := time.Now()
	for i := 0; i < *ticks; i++ {
		if err := eng.RunTick(ctx); err != nil {
			log.Fatalf("Tick %d failed: %v", i, err)
		}
		simTime = simTime.Add(*step)

		stats, err := eng.ProcessBatch(ctx)
		if err != nil {
			log.Fatalf("Batch at tick %d failed: %v", i, err)
		}
		totals.engaged += stats.Engaged
		totals.ignored += stats.Ignored
		totals.errors += stats.Errors
		totals.likes += stats.Likes

		replyToRandomBotComment(ctx, mem, rng, simTime)
	}
	elapsed := time.Since(start)

	fmt.Println("=== Simulation Complete ===")
	fmt.Printf("Duration: %v\n", elapsed)
	fmt.Printf("Ticks: %d\n", eng.Ticks())
	fmt.Printf("Engaged: %d, ignored: %d, likes: %d, errors: %d\n\n",
		totals.engaged, totals.ignored, totals.likes, totals.errors)

	printPostActivity(ctx, mem, bots)
}

func seedPosts(ctx context.Context, mem *store.Memory, now time.Time) {
	posts := []types.Post{
		{
			ID: "post-raft", AuthorID: "human-ana", AuthorName: "Ana",
			Title:   "Lessons from running Raft in production",
			Content: "Three years of etcd operations taught us more about disk latency than consensus papers ever did.",
			Tags:    []string{"distributed systems", "databases"},
		},
		{
			ID: "post-fuzzing", AuthorID: "human-kofi", AuthorName: "Kofi",
			Title:   "Fuzzing found 12 bugs our test suite missed",
			Content: "We pointed go-fuzz at our parser for a weekend. Here's what fell out.",
			Tags:    []string{"testing", "security", "golang"},
		},
		{
			ID: "post-css", AuthorID: "human-mira", AuthorName: "Mira",
			Title:   "Container queries changed how I build components",
			Content: "Media queries couple layout to the viewport. Container queries finally let components own their breakpoints.",
			Tags:    []string{"web", "frontend"},
		},
		{
			ID: "post-tracing", AuthorID: "human-jon", AuthorName: "Jon",
			Title:   "Tracing a tail-latency mystery through three services",
			Content: "p99 doubled overnight and every dashboard was green. A trace waterfall told a different story.",
			Tags:    []string{"observability", "sre", "performance"},
		},
	}
	for i, p := range posts {
		p.Published = true
		p.CreatedAt = now.Add(-time.Duration(i+1) * time.Hour)
		if err := mem.PutPost(ctx, p); err != nil {
			log.Fatalf("Failed to seed post %s: %v", p.ID, err)
		}
	}
	fmt.Printf("Seeded %d posts\n", len(posts))
}

// replyToRandomBotComment occasionally plays a human replying to a bot,
// which exercises the notification and reply path.
func replyToRandomBotComment(ctx context.Context, mem *store.Memory, rng *rand.Rand, now time.Time) {
	if rng.Float64() > 0.15 {
		return
	}
	posts, err := mem.ListRecentPosts(ctx, 10)
	if err != nil || len(posts) == 0 {
		return
	}
	post := posts[rng.Intn(len(posts))]
	comments, err := mem.TopLevelComments(ctx, post.ID, 20)
	if err != nil {
		return
	}
	var botComments []types.Comment
	for _, c := range comments {
		if c.AuthorIsBot {
			botComments = append(botComments, c)
		}
	}
	if len(botComments) == 0 {
		return
	}
	target := botComments[rng.Intn(len(botComments))]

	replyID, err := mem.CreateComment(ctx, types.Comment{
		PostID:              post.ID,
		ParentCommentID:     target.ID,
		ThreadRootCommentID: types.ThreadRootOf(target),
		AuthorID:            "human-sim",
		AuthorName:          "Sim Human",
		Content:             "Interesting point, can you say more?",
		CreatedAt:           now,
	})
	if err != nil {
		return
	}
	_ = mem.IncrementPostComments(ctx, post.ID)
	_ = mem.IncrementReplyCount(ctx, target.ID)
	_, _ = mem.CreateNotification(ctx, types.Notification{
		RecipientID:         target.AuthorID,
		PostID:              post.ID,
		CommentID:           replyID,
		ParentCommentID:     target.ID,
		ParentAuthorID:      target.AuthorID,
		ThreadRootCommentID: types.ThreadRootOf(target),
		CreatedAt:           now,
	})
}

func printPostActivity(ctx context.Context, mem *store.Memory, bots []types.BotProfile) {
	posts, err := mem.ListRecentPosts(ctx, 20)
	if err != nil {
		return
	}
	fmt.Println("Post Activity:")
	for _, p := range posts {
		fmt.Printf("  %q: %d comments\n", p.Title, p.CommentCount)
	}

	fmt.Println("\nBot Activity:")
	for _, bot := range bots {
		total := 0
		for _, p := range posts {
			n, err := mem.CountPostComments(ctx, p.ID, bot.ID)
			if err == nil {
				total += n
			}
		}
		fmt.Printf("  %s: %d comments\n", bot.DisplayName, total)
	}
}
