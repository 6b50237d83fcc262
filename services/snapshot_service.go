// services/snapshot_service.go
package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility/internal/models"
)

// neutralScore is the average sentiment reported when no row carries a score.
const neutralScore = 0.5

type snapshotAggregator struct {
	repos *RepositoryManager
}

func NewSnapshotAggregator(repos *RepositoryManager) SnapshotAggregator {
	return &snapshotAggregator{repos: repos}
}

// Aggregate recomputes the (project, surface, date) snapshot from the stored
// probe rows and upserts it. A shortfall against expected is only logged.
func (s *snapshotAggregator) Aggregate(ctx context.Context, projectID uuid.UUID, surface string, date time.Time, expected int) (*models.Snapshot, error) {
	rows, err := s.repos.ProbeResults.ListByDay(ctx, projectID, surface, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s results: %w", surface, err)
	}

	snapshot := BuildSnapshot(projectID, surface, date, rows)
	if expected > 0 && snapshot.TotalQueries < expected {
		log.Warn().
			Str("project_id", projectID.String()).
			Str("surface", surface).
			Int("rows", snapshot.TotalQueries).
			Int("expected", expected).
			Msg("[Aggregate] snapshot is incomplete")
	}

	if err := s.repos.Snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to store %s snapshot: %w", surface, err)
	}

	log.Info().
		Str("project_id", projectID.String()).
		Str("surface", surface).
		Int("total_queries", snapshot.TotalQueries).
		Float64("mention_rate", snapshot.MentionRate).
		Float64("share_of_voice", snapshot.ShareOfVoice).
		Msg("[Aggregate] snapshot stored")
	return snapshot, nil
}

// PositionWeight is the visibility weight of a mention at position p. A nil
// position weighs 1.0.
func PositionWeight(p *int) float64 {
	if p == nil || *p < 1 {
		return 1.0
	}
	switch {
	case *p <= 3:
		return 2.0
	case *p <= 5:
		return 1.5
	case *p <= 10:
		return 1.2
	default:
		return 0.8
	}
}

// BuildSnapshot is the pure roll-up of one day of rows. Errored rows count
// toward total_queries; their mention fields are zero.
func BuildSnapshot(projectID uuid.UUID, surface string, date time.Time, rows []*models.ProbeResult) *models.Snapshot {
	snapshot := &models.Snapshot{
		ProjectID:                   projectID,
		Surface:                     surface,
		SnapshotDate:                date,
		TotalQueries:                len(rows),
		CompetitorBreakdown:         models.CountMap{},
		WeightedCompetitorBreakdown: models.WeightMap{},
	}

	var (
		positionSum  int
		positions    int
		scoreSum     float64
		scores       int
		latencySum   int
		brandTotal   int
		weightedSelf float64
	)
	weighted := make(map[string]float64)

	for _, r := range rows {
		if r.BrandMentioned {
			snapshot.TotalMentions++
		}

		if r.Position != nil {
			p := *r.Position
			positionSum += p
			positions++
			if p <= 3 {
				snapshot.AppearedInTop3++
			}
			if p <= 5 {
				snapshot.AppearedInTop5++
			}
			if p <= 10 {
				snapshot.AppearedInTop10++
			}
		}

		if r.Sentiment != nil {
			switch *r.Sentiment {
			case models.SentimentPositive:
				snapshot.PositiveMentions++
			case models.SentimentNegative:
				snapshot.NegativeMentions++
			default:
				snapshot.NeutralMentions++
			}
		}
		if r.SentimentScore != nil {
			scoreSum += *r.SentimentScore
			scores++
		}

		latencySum += r.LatencyMS
		snapshot.TotalCostUSD += r.CostUSD
		snapshot.TotalTokens += r.TokensIn + r.TokensOut

		w := PositionWeight(r.Position)
		brandTotal += r.MentionCount
		weightedSelf += w * float64(r.MentionCount)
		for key, n := range r.CompetitorsMentioned {
			if n <= 0 {
				continue
			}
			snapshot.CompetitorBreakdown[key] += n
			weighted[key] += w * float64(n)
		}
	}

	if snapshot.TotalQueries > 0 {
		snapshot.MentionRate = round2(100 * float64(snapshot.TotalMentions) / float64(snapshot.TotalQueries))
		snapshot.AvgResponseTimeMS = round2(float64(latencySum) / float64(snapshot.TotalQueries))
	}
	if positions > 0 {
		snapshot.AvgPosition = models.FloatPtr(round2(float64(positionSum) / float64(positions)))
	}
	snapshot.AvgSentimentScore = neutralScore
	if scores > 0 {
		snapshot.AvgSentimentScore = round4(scoreSum / float64(scores))
	}
	snapshot.TotalCostUSD = round6(snapshot.TotalCostUSD)

	keys := make([]string, 0, len(snapshot.CompetitorBreakdown))
	for key := range snapshot.CompetitorBreakdown {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var weightedOthers float64
	for _, key := range keys {
		snapshot.TotalCompetitorMentions += snapshot.CompetitorBreakdown[key]
		weightedOthers += weighted[key]
		snapshot.WeightedCompetitorBreakdown[key] = round4(weighted[key])
	}

	total := brandTotal + snapshot.TotalCompetitorMentions
	if total < 1 {
		total = 1
	}
	snapshot.ShareOfVoice = round2(100 * float64(brandTotal) / float64(total))

	weightedTotal := weightedSelf + weightedOthers
	if weightedTotal <= 0 {
		weightedTotal = 1
	}
	snapshot.WeightedShareOfVoice = round2(100 * weightedSelf / weightedTotal)

	return snapshot
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
