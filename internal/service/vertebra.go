package service

import (
	"sort"
	"strings"
)

// Lumbar vertebrae in anatomical order.
var lumbarVertebrae = []string{"L1", "L2", "L3", "L4"}

// vertebraCombinations are tried in order of preference.
var vertebraCombinations = [][]string{
	{"L1", "L2", "L3", "L4"},
	{"L1", "L2", "L3"},
	{"L2", "L3", "L4"},
}

// outlierGap is the T-score gap above which an end vertebra is excluded.
const outlierGap = 1.0

// VertebraScores maps L1..L4 to their T-scores; nil or missing means absent.
type VertebraScores map[string]*float64

// VertebraSelection is the lumbar combination reported for a study.
type VertebraSelection struct {
	Combination []string `json:"combination"`
	Excluded    []string `json:"excluded,omitempty"`
}

// FullSpine reports whether all four vertebrae are used.
func (s VertebraSelection) FullSpine() bool {
	return len(s.Combination) == 4
}

// RegionName returns the point region of the combination, e.g. "L1-L3".
func (s VertebraSelection) RegionName() string {
	if len(s.Combination) == 0 {
		return ""
	}
	return s.Combination[0] + "-" + s.Combination[len(s.Combination)-1]
}

// ExcludesL4 reports whether the lumbar fallback of the fracture risk
// classifier is barred, which is the case for anything but the full spine.
func (s VertebraSelection) ExcludesL4() bool {
	return !s.FullSpine()
}

// String renders the combination as "L1 L2 L3".
func (s VertebraSelection) String() string {
	return strings.Join(s.Combination, " ")
}

type vertebraScore struct {
	name  string
	score float64
}

// SelectVertebrae decides which lumbar vertebrae are valid for reporting.
// Below age 50 the full spine is always used.
func SelectVertebrae(age int, scores VertebraScores) VertebraSelection {
	if age < 50 {
		return VertebraSelection{Combination: append([]string(nil), vertebraCombinations[0]...)}
	}

	present := make([]vertebraScore, 0, len(lumbarVertebrae))
	for _, v := range lumbarVertebrae {
		if s := scores[v]; s != nil {
			present = append(present, vertebraScore{name: v, score: *s})
		}
	}
	sort.SliceStable(present, func(i, j int) bool { return present[i].score > present[j].score })

	excluded := outliers(present)
	valid := make(map[string]bool, len(present))
	for _, p := range present {
		valid[p.name] = true
	}
	for _, v := range excluded {
		valid[v] = false
	}

	for _, combo := range vertebraCombinations {
		if allValid(combo, valid) {
			return VertebraSelection{Combination: append([]string(nil), combo...), Excluded: excluded}
		}
	}
	return VertebraSelection{Combination: []string{}, Excluded: excluded}
}

// outliers returns L1 when it sits too far above the rest and L4 when it sits
// too far below. sorted is ordered by score descending. The extreme-position
// rule needs at least three scores, the second-position rule four.
func outliers(sorted []vertebraScore) []string {
	var excluded []string
	n := len(sorted)

	switch {
	case n >= 3 && sorted[0].name == "L1" && sorted[0].score-sorted[1].score > outlierGap:
		excluded = append(excluded, "L1")
	case n >= 4 && sorted[1].name == "L1" && sorted[1].score-sorted[2].score > outlierGap:
		excluded = append(excluded, "L1")
	}

	switch {
	case n >= 3 && sorted[n-1].name == "L4" && sorted[n-2].score-sorted[n-1].score > outlierGap:
		excluded = append(excluded, "L4")
	case n >= 4 && sorted[n-2].name == "L4" && sorted[n-3].score-sorted[n-2].score > outlierGap:
		excluded = append(excluded, "L4")
	}
	return excluded
}

func allValid(combo []string, valid map[string]bool) bool {
	for _, v := range combo {
		if !valid[v] {
			return false
		}
	}
	return true
}
