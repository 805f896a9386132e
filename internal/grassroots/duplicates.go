package grassroots

import (
	"math"
	"sort"
	"strings"

	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/utils"
)

const (
	exactBase        = 90
	partialBase      = 50
	partialWeight    = 40
	locationBonus    = 5
	minConfidence    = 40
	maxCandidates    = 10
	candidatePool    = 50
	partialThreshold = 0.5
)

// Matched-on attribute names reported to moderators.
const (
	MatchedName         = "name"
	MatchedSlug         = "slug"
	MatchedSimilarName  = "similar_name"
	MatchedState        = "state"
	MatchedCity         = "city"
	MatchedParentLeague = "parent_league"
)

// scoreCandidates ranks refs against sub. Name or slug equality is an exact
// match; otherwise token overlap decides a partial match. Shared location and
// parent league add to the score.
func scoreCandidates(sub *models.GrassrootsSubmission, refs []models.EntityRef) []models.DuplicateCandidate {
	name := utils.NormalizeName(sub.EntityName)
	tokens := utils.NameTokens(sub.EntityName)

	out := make([]models.DuplicateCandidate, 0, len(refs))
	for _, ref := range refs {
		var (
			score   float64
			match   models.MatchType
			matched []string
		)
		if name != "" && utils.NormalizeName(ref.Name) == name {
			match, score = models.MatchExact, exactBase
			matched = append(matched, MatchedName)
		}
		if sub.Slug != "" && ref.Slug == sub.Slug {
			match, score = models.MatchExact, exactBase
			matched = append(matched, MatchedSlug)
		}
		if match == "" {
			other := utils.NameTokens(ref.Name)
			j := jaccard(tokens, other)
			if j < partialThreshold && !contains(tokens, other) {
				continue
			}
			match, score = models.MatchPartial, partialBase+partialWeight*j
			matched = append(matched, MatchedSimilarName)
		}
		if sameText(sub.StateCode, ref.StateCode) {
			score += locationBonus
			matched = append(matched, MatchedState)
		}
		if sameText(sub.City, ref.City) {
			score += locationBonus
			matched = append(matched, MatchedCity)
		}
		if sub.ParentLeagueID != "" && sub.ParentLeagueID == ref.LeagueID {
			score += locationBonus
			matched = append(matched, MatchedParentLeague)
		}
		confidence := int(math.Round(math.Min(score, 100)))
		if confidence < minConfidence {
			continue
		}
		out = append(out, models.DuplicateCandidate{
			EntityID:          ref.ID,
			EntityType:        ref.Type,
			Name:              ref.Name,
			Slug:              ref.Slug,
			MatchType:         match,
			ConfidencePercent: confidence,
			MatchedOn:         matched,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConfidencePercent != out[j].ConfidencePercent {
			return out[i].ConfidencePercent > out[j].ConfidencePercent
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func sameText(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(b))
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b| over distinct tokens.
func jaccard(a, b []string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// contains reports whether every token of the smaller set appears in the larger.
func contains(a, b []string) bool {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return false
	}
	if len(sa) > len(sb) {
		sa, sb = sb, sa
	}
	for t := range sa {
		if _, ok := sb[t]; !ok {
			return false
		}
	}
	return true
}
