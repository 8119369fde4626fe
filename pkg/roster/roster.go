// Package roster ships the built-in bot personas and a generator for
// larger randomized rosters. Profiles here are static seed data; authoring
// pipelines live outside this repo.
package roster

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/quillpost/botengine/pkg/types"
)

// Archetype shapes a generated profile's behavior ranges.
type Archetype string

const (
	ArchetypeEnthusiast Archetype = "enthusiast"
	ArchetypeSkeptic    Archetype = "skeptic"
	ArchetypeLurker     Archetype = "lurker"
	ArchetypeHelper     Archetype = "helper"
	ArchetypeChatterbox Archetype = "chatterbox"
)

var defaultBots = []types.BotProfile{
	{
		ID:          "bot-enthusiast-1",
		DisplayName: "Maya Chen",
		Active:      true,
		Likes:       []string{"distributed systems", "databases", "performance"},
		Dislikes:    []string{"crypto"},
		TopicPreferences: map[string]float64{
			"golang": 0.6,
			"raft":   0.5,
		},
		Voice: "upbeat, shares firsthand experience, loves concrete benchmarks",
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  0.45,
			ReplyResponseProbability: 0.8,
			PostDelay:                types.DelayRange{MinMinutes: 5, MaxMinutes: 60},
			ReplyDelay:               types.DelayRange{MinMinutes: 2, MaxMinutes: 20},
			ActionWeights: map[string]float64{
				types.WeightCommentOnPost:  0.35,
				types.WeightReplyToComment: 0.25,
				types.WeightLikePostOnly:   0.2,
				types.WeightLikeAndComment: 0.15,
				types.WeightIgnore:         0.05,
			},
			MaxCommentsPerPost:  2,
			MaxRepliesPerThread: 3,
			TypoChance:          0.15,
			MaxTyposPerComment:  1,
		},
	},
	{
		ID:          "bot-skeptic-1",
		DisplayName: "Viktor Osei",
		Active:      true,
		Likes:       []string{"security", "formal methods", "testing"},
		Dislikes:    []string{"hype", "benchmarketing"},
		Voice:       "dry, asks for evidence, pokes holes politely",
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  0.25,
			ReplyResponseProbability: 0.65,
			PostDelay:                types.DelayRange{MinMinutes: 15, MaxMinutes: 120},
			ReplyDelay:               types.DelayRange{MinMinutes: 5, MaxMinutes: 40},
			ActionWeights: map[string]float64{
				types.WeightCommentOnPost:  0.3,
				types.WeightReplyToComment: 0.35,
				types.WeightLikePostOnly:   0.1,
				types.WeightIgnore:         0.25,
			},
			MaxCommentsPerPost:  1,
			MaxRepliesPerThread: 2,
		},
	},
	{
		ID:          "bot-lurker-1",
		DisplayName: "Iris Lindqvist",
		Active:      true,
		Likes:       []string{"observability", "sre"},
		Voice:       "brief, mostly reads, occasionally drops a pointed one-liner",
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  0.1,
			ReplyResponseProbability: 0.5,
			PostDelay:                types.DelayRange{MinMinutes: 30, MaxMinutes: 180},
			ReplyDelay:               types.DelayRange{MinMinutes: 10, MaxMinutes: 60},
			ActionWeights: map[string]float64{
				types.WeightCommentOnPost: 0.1,
				types.WeightLikePostOnly:  0.5,
				types.WeightIgnore:        0.4,
			},
			CommentLimits: &types.CommentLimits{PerDay: 2},
		},
	},
	{
		ID:          "bot-helper-1",
		DisplayName: "Sam Okafor",
		Active:      true,
		Likes:       []string{"beginners", "tutorials", "documentation"},
		TopicPreferences: map[string]float64{
			"how-to": 0.7,
		},
		Voice: "patient, links docs, answers questions others skipped",
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  0.35,
			ReplyResponseProbability: 0.85,
			PostDelay:                types.DelayRange{MinMinutes: 5, MaxMinutes: 45},
			ReplyDelay:               types.DelayRange{MinMinutes: 2, MaxMinutes: 15},
			ActionWeights: map[string]float64{
				types.WeightCommentOnPost:  0.25,
				types.WeightReplyToComment: 0.45,
				types.WeightLikeAndComment: 0.15,
				types.WeightLikePostOnly:   0.1,
				types.WeightIgnore:         0.05,
			},
			MaxRepliesPerThread: 4,
			ActiveWindow:        &types.ActiveWindow{Start: "07:00", End: "22:00", Timezone: "UTC"},
		},
	},
	{
		ID:          "bot-chatterbox-1",
		DisplayName: "Leo Marchetti",
		Active:      true,
		Likes:       []string{"web", "frontend", "design"},
		Voice:       "casual, typo-prone, reacts fast and often",
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  0.6,
			ReplyResponseProbability: 0.9,
			PostDelay:                types.DelayRange{MinMinutes: 2, MaxMinutes: 30},
			ReplyDelay:               types.DelayRange{MinMinutes: 1, MaxMinutes: 10},
			ActionWeights: map[string]float64{
				types.WeightCommentOnPost:  0.4,
				types.WeightReplyToComment: 0.3,
				types.WeightLikeAndComment: 0.2,
				types.WeightLikePostOnly:   0.1,
			},
			MaxCommentsPerPost: 3,
			TypoChance:         0.35,
			MaxTyposPerComment: 2,
			CommentLimits:      &types.CommentLimits{PerHour: 4, PerDay: 20},
		},
	},
}

var namePool = []string{
	"Nora Vance", "Dmitri Kovac", "Aya Tanaka", "Felix Brandt", "Zoe Almeida",
	"Ravi Menon", "Clara Joubert", "Oskar Nilsen", "Tess Whitfield", "Mateo Ruiz",
	"Hana Srour", "Jonas Keller", "Priya Nair", "Emil Varga", "Lucia Ferreira",
}

var topicPool = []string{
	"distributed systems", "databases", "security", "observability", "golang",
	"web", "frontend", "testing", "performance", "sre",
	"machine learning", "networking", "compilers", "devops", "apis",
}

var archetypeCycle = []Archetype{
	ArchetypeEnthusiast,
	ArchetypeSkeptic,
	ArchetypeLurker,
	ArchetypeHelper,
	ArchetypeChatterbox,
}

// DefaultBots returns the built-in roster.
func DefaultBots() []types.BotProfile {
	out := make([]types.BotProfile, len(defaultBots))
	copy(out, defaultBots)
	return out
}

// GenerateProfiles creates up to count profiles, defaults first then
// randomized ones with archetype-typical trait ranges.
func GenerateProfiles(count int, seed int64) []types.BotProfile {
	if count <= 0 {
		return []types.BotProfile{}
	}
	bots := DefaultBots()
	if count <= len(bots) {
		return bots[:count]
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	archetypeCounts := map[Archetype]int{}
	for _, a := range archetypeCycle {
		archetypeCounts[a] = 1
	}
	nameIdx := 0

	for len(bots) < count {
		a := archetypeCycle[len(bots)%len(archetypeCycle)]
		archetypeCounts[a]++

		name := fmt.Sprintf("Bot %d", len(bots)+1)
		if nameIdx < len(namePool) {
			name = namePool[nameIdx]
			nameIdx++
		}

		bots = append(bots, generateProfile(rng, a, archetypeCounts[a], name))
	}
	return bots
}

func generateProfile(rng *rand.Rand, a Archetype, n int, name string) types.BotProfile {
	minBase, maxBase := archetypeBaseRange(a)
	minReply, maxReply := archetypeReplyRange(a)

	profile := types.BotProfile{
		ID:          fmt.Sprintf("bot-%s-%d", a, n),
		DisplayName: name,
		Active:      true,
		Likes:       pickTopics(rng, 2+rng.Intn(2)),
		Behavior: types.BehaviorConfig{
			BaseResponseProbability:  sampleRange(rng, minBase, maxBase),
			ReplyResponseProbability: sampleRange(rng, minReply, maxReply),
			PostDelay:                types.DelayRange{MinMinutes: 5 + rng.Intn(20), MaxMinutes: 60 + rng.Intn(90)},
			ReplyDelay:               types.DelayRange{MinMinutes: 1 + rng.Intn(5), MaxMinutes: 15 + rng.Intn(30)},
			ActionWeights:            archetypeWeights(a),
			MaxCommentsPerPost:       1 + rng.Intn(3),
			MaxRepliesPerThread:      2 + rng.Intn(3),
			TypoChance:               archetypeTypoChance(a),
			MaxTyposPerComment:       1,
		},
	}
	if len(profile.Likes) > 0 {
		profile.TopicPreferences = map[string]float64{
			profile.Likes[0]: sampleRange(rng, 0.3, 0.7),
		}
	}
	return profile
}

func pickTopics(rng *rand.Rand, count int) []string {
	chosen := map[string]bool{}
	for len(chosen) < count {
		chosen[topicPool[rng.Intn(len(topicPool))]] = true
	}
	topics := make([]string, 0, len(chosen))
	for t := range chosen {
		topics = append(topics, t)
	}
	return topics
}

func archetypeBaseRange(a Archetype) (float64, float64) {
	switch a {
	case ArchetypeEnthusiast:
		return 0.35, 0.55
	case ArchetypeSkeptic:
		return 0.2, 0.35
	case ArchetypeLurker:
		return 0.05, 0.15
	case ArchetypeHelper:
		return 0.25, 0.45
	case ArchetypeChatterbox:
		return 0.5, 0.7
	default:
		return 0.2, 0.5
	}
}

func archetypeReplyRange(a Archetype) (float64, float64) {
	switch a {
	case ArchetypeLurker:
		return 0.3, 0.55
	case ArchetypeChatterbox:
		return 0.8, 0.95
	default:
		return 0.6, 0.85
	}
}

func archetypeWeights(a Archetype) map[string]float64 {
	switch a {
	case ArchetypeLurker:
		return map[string]float64{
			types.WeightCommentOnPost: 0.1,
			types.WeightLikePostOnly:  0.5,
			types.WeightIgnore:        0.4,
		}
	case ArchetypeHelper:
		return map[string]float64{
			types.WeightCommentOnPost:  0.25,
			types.WeightReplyToComment: 0.45,
			types.WeightLikeAndComment: 0.15,
			types.WeightLikePostOnly:   0.1,
			types.WeightIgnore:         0.05,
		}
	case ArchetypeChatterbox:
		return map[string]float64{
			types.WeightCommentOnPost:  0.4,
			types.WeightReplyToComment: 0.3,
			types.WeightLikeAndComment: 0.2,
			types.WeightLikePostOnly:   0.1,
		}
	default:
		return types.DefaultActionWeights()
	}
}

func archetypeTypoChance(a Archetype) float64 {
	switch a {
	case ArchetypeChatterbox:
		return 0.3
	case ArchetypeLurker, ArchetypeSkeptic:
		return 0
	default:
		return 0.1
	}
}

func sampleRange(rng *rand.Rand, min, max float64) float64 {
	if max < min {
		min, max = max, min
	}
	return min + rng.Float64()*(max-min)
}
