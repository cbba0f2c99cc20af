package scoring

import (
	"math"
	"sort"
)

// MaxBand is the highest band score.
const MaxBand = 9.0

// RawScoreToBand clamps raw to the paper's range, rounds it to a whole answer count and returns
// the band of the matching table row. LowestBand is returned if no row matches.
func RawScoreToBand(raw float64, table *Table) float64 {
	if table == nil {
		return LowestBand
	}
	r := int(math.Round(math.Min(math.Max(raw, MinRawScore), MaxRawScore)))
	for _, row := range table.Ranges {
		if r >= row.Min && r <= row.Max {
			return row.Band
		}
	}
	return LowestBand
}

// RoundToHalfBand rounds x to the nearest 0.5. Exact quarter ties round up.
func RoundToHalfBand(x float64) float64 {
	return math.Floor(x*2+0.5) / 2
}

// CalculateWritingBand averages each task's criterion scores, rounds each to a half band and
// weights Task 2 double. It returns 0 if either task has no scores.
func CalculateWritingBand(task1Scores, task2Scores []float64) float64 {
	if len(task1Scores) == 0 || len(task2Scores) == 0 {
		return 0
	}
	t1 := RoundToHalfBand(mean(task1Scores))
	t2 := RoundToHalfBand(mean(task2Scores))
	return RoundToHalfBand((t1 + 2*t2) / 3)
}

// CalculateSpeakingBand is the half-band-rounded mean of the criterion scores, or 0 if empty.
func CalculateSpeakingBand(criteriaScores []float64) float64 {
	if len(criteriaScores) == 0 {
		return 0
	}
	return RoundToHalfBand(mean(criteriaScores))
}

// TaskBand is the half-band-rounded mean of one graded task's criterion scores, or 0 if empty.
func TaskBand(criteriaScores []float64) float64 {
	if len(criteriaScores) == 0 {
		return 0
	}
	return RoundToHalfBand(mean(criteriaScores))
}

// CalculateOverallBand is the half-band-rounded mean of the available skill bands, or 0 if none.
func CalculateOverallBand(skillBands []float64) float64 {
	if len(skillBands) == 0 {
		return 0
	}
	return RoundToHalfBand(mean(skillBands))
}

// CriteriaValues returns the scores of a criterion map ordered by criterion name.
func CriteriaValues(scores map[string]float64) []float64 {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]float64, 0, len(keys))
	for _, k := range keys {
		out = append(out, scores[k])
	}
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
