// Package search ranks candidates against a query by fuzzy subsequence
// matching.
//
// A candidate matches when every query rune appears in its key in order.
// Among all such alignments the highest scoring one is chosen:
//
//	MatchBonus        per matched rune
//	ConsecutiveBonus  per matched rune directly after another matched rune
//	BoundaryBonus     per matched rune at the start of the key or after a separator
//	LeadingPenalty    per unmatched rune before the first match
//	GapPenalty        per unmatched rune between two matched runes
//
// Results are ordered by score, then shorter key, then store order, so the
// same query over the same candidates always yields the same list.
package search

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bryanchriswhite/hopper/internal/candidate"
)

const (
	MatchBonus       = 16
	ConsecutiveBonus = 24
	BoundaryBonus    = 20
	LeadingPenalty   = 3
	GapPenalty       = 1
)

const separators = " -_./:"

const unreachable = math.MinInt / 2

// Match is a scored candidate
type Match struct {
	Candidate candidate.Candidate
	Score     int
	// Positions are rune indexes into Candidate.Key
	Positions []int
	Mode      candidate.Mode
}

// Normalize prepares a query for matching
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Score matches query against c. An empty query matches everything with
// the candidate's weight as its score.
func Score(query string, c candidate.Candidate) (Match, bool) {
	query = Normalize(query)
	if query == "" {
		return Match{Candidate: c, Score: c.Weight}, true
	}

	score, positions, ok := align([]rune(query), []rune(c.Key))
	if !ok {
		return Match{}, false
	}
	return Match{Candidate: c, Score: score, Positions: positions}, true
}

// Rank scores every candidate and returns the matches in display order.
// limit <= 0 returns all matches.
func Rank(query string, candidates []candidate.Candidate, mode candidate.Mode, limit int) []Match {
	query = Normalize(query)

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if m, ok := Score(query, c); ok {
			m.Mode = mode
			matches = append(matches, m)
		}
	}

	if query == "" {
		sort.SliceStable(matches, func(i, j int) bool {
			a, b := matches[i], matches[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			return a.Candidate.Index < b.Candidate.Index
		})
	} else {
		sort.SliceStable(matches, func(i, j int) bool {
			a, b := matches[i], matches[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			la, lb := utf8.RuneCountInString(a.Candidate.Key), utf8.RuneCountInString(b.Candidate.Key)
			if la != lb {
				return la < lb
			}
			return a.Candidate.Index < b.Candidate.Index
		})
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func isBoundary(key []rune, j int) bool {
	return j == 0 || strings.ContainsRune(separators, key[j-1])
}

// isSubsequence is a cheap pre-check before the quadratic alignment
func isSubsequence(query, key []rune) bool {
	i := 0
	for _, r := range key {
		if i < len(query) && r == query[i] {
			i++
		}
	}
	return i == len(query)
}

// align finds the best scoring placement of query in key.
// score[i][j] is the best score of query[:i+1] with query[i] at key[j].
func align(query, key []rune) (int, []int, bool) {
	n, m := len(query), len(key)
	if n == 0 || n > m || !isSubsequence(query, key) {
		return 0, nil, false
	}

	score := make([][]int, n)
	from := make([][]int, n)
	for i := range score {
		score[i] = make([]int, m)
		from[i] = make([]int, m)
	}

	for j := 0; j < m; j++ {
		score[0][j] = unreachable
		if key[j] == query[0] {
			score[0][j] = bonus(key, j) - LeadingPenalty*j
			from[0][j] = -1
		}
	}

	for i := 1; i < n; i++ {
		// best of score[i-1][p] + GapPenalty*p over p <= j-2
		bestGap, bestGapAt := unreachable, -1
		for j := 0; j < m; j++ {
			if p := j - 2; p >= 0 && score[i-1][p] != unreachable {
				if v := score[i-1][p] + GapPenalty*p; v > bestGap {
					bestGap, bestGapAt = v, p
				}
			}

			score[i][j] = unreachable
			if key[j] != query[i] {
				continue
			}

			best, bestFrom := unreachable, -1
			if j >= 1 && score[i-1][j-1] != unreachable {
				best, bestFrom = score[i-1][j-1]+ConsecutiveBonus, j-1
			}
			if bestGapAt >= 0 {
				if v := bestGap - GapPenalty*(j-1); v > best {
					best, bestFrom = v, bestGapAt
				}
			}
			if bestFrom < 0 {
				continue
			}
			score[i][j] = best + bonus(key, j)
			from[i][j] = bestFrom
		}
	}

	end, total := -1, unreachable
	for j := 0; j < m; j++ {
		if score[n-1][j] > total {
			end, total = j, score[n-1][j]
		}
	}
	if end < 0 {
		return 0, nil, false
	}

	positions := make([]int, n)
	for i, j := n-1, end; i >= 0; i-- {
		positions[i] = j
		j = from[i][j]
	}
	return total, positions, true
}

func bonus(key []rune, j int) int {
	if isBoundary(key, j) {
		return MatchBonus + BoundaryBonus
	}
	return MatchBonus
}
