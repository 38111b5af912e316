package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/partnergate/pkg/types"
)

const (
	gapTolerance = 1.5
	iqrFactor    = 1.5
)

// ExpectedGapDays is the nominal spacing between observations for a frequency.
func ExpectedGapDays(f types.Frequency) float64 {
	switch f {
	case types.FrequencyDaily:
		return 1
	case types.FrequencyWeekly:
		return 7
	case types.FrequencyMonthly:
		return 30
	case types.FrequencyQuarterly:
		return 90
	case types.FrequencyAnnual:
		return 365
	default:
		return 30
	}
}

// CheckContinuity runs Layer 2: duplicates, gaps and outliers.
// Only duplicates fail the layer.
func CheckContinuity(records []types.Record, frequency types.Frequency) types.ContinuityResult {
	views := resolve(records)
	issues := make([]types.ContinuityIssue, 0)
	issues = append(issues, findDuplicates(views)...)
	issues = append(issues, findGaps(views, frequency)...)
	issues = append(issues, findOutliers(views)...)

	dups := 0
	for _, issue := range issues {
		if issue.Type == types.IssueDuplicate {
			dups++
		}
	}
	return types.ContinuityResult{Passed: dups == 0, Issues: issues}
}

func duplicateKey(v recordView) (string, bool) {
	date := v.rawDate
	if v.hasDate {
		date = calendarDay(v.date)
	}
	if date == "" && v.indicator == "" {
		return "", false
	}
	return date + "\x00" + v.indicator, true
}

func findDuplicates(views []recordView) []types.ContinuityIssue {
	order := make([]string, 0)
	groups := make(map[string][]int)
	labels := make(map[string]string)
	for _, v := range views {
		key, ok := duplicateKey(v)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
			labels[key] = strings.Replace(key, "\x00", "/", 1)
		}
		groups[key] = append(groups[key], v.index)
	}

	var out []types.ContinuityIssue
	for _, key := range order {
		idx := groups[key]
		if len(idx) < 2 {
			continue
		}
		out = append(out, types.ContinuityIssue{
			Type:            types.IssueDuplicate,
			Description:     fmt.Sprintf("duplicate record for %s (%d occurrences)", labels[key], len(idx)),
			AffectedRecords: idx,
		})
	}
	return out
}

func findGaps(views []recordView, frequency types.Frequency) []types.ContinuityIssue {
	type dated struct {
		at    time.Time
		index int
	}
	var points []dated
	for _, v := range views {
		if v.hasDate {
			points = append(points, dated{at: v.date, index: v.index})
		}
	}
	if len(points) < 2 {
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].at.Equal(points[j].at) {
			return points[i].index < points[j].index
		}
		return points[i].at.Before(points[j].at)
	})

	expected := ExpectedGapDays(frequency)
	var out []types.ContinuityIssue
	for i := 1; i < len(points); i++ {
		days := points[i].at.Sub(points[i-1].at).Hours() / 24
		if days > expected*gapTolerance {
			out = append(out, types.ContinuityIssue{
				Type: types.IssueGap,
				Description: fmt.Sprintf("gap of %.0f days between %s and %s (expected %.0f)",
					days, calendarDay(points[i-1].at), calendarDay(points[i].at), expected),
				AffectedRecords: []int{points[i-1].index, points[i].index},
			})
		}
	}
	return out
}

func findOutliers(views []recordView) []types.ContinuityIssue {
	var values []float64
	var owners []int
	for _, v := range views {
		if v.hasValue {
			values = append(values, v.value)
			owners = append(owners, v.index)
		}
	}
	if len(values) <= 4 {
		return nil
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	q1 := sorted[int(math.Floor(float64(n)*0.25))]
	q3 := sorted[int(math.Floor(float64(n)*0.75))]
	iqr := q3 - q1
	lower := q1 - iqrFactor*iqr
	upper := q3 + iqrFactor*iqr

	var out []types.ContinuityIssue
	for i, value := range values {
		if value < lower || value > upper {
			out = append(out, types.ContinuityIssue{
				Type:            types.IssueOutlier,
				Description:     fmt.Sprintf("value %g outside [%g, %g]", value, lower, upper),
				AffectedRecords: []int{owners[i]},
			})
		}
	}
	return out
}
