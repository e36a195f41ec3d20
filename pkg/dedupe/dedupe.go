// Package dedupe removes exact and near-duplicate videos from a discovery
// result.
package dedupe

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/elonfeng/viralclips/pkg/source"
)

// DefaultThreshold is the title similarity at which two videos are treated
// as the same content.
const DefaultThreshold = 0.85

// Dedupe returns videos ordered by TrendingScore, highest first, with
// duplicates removed. A video is dropped when its URL or a title at or above
// threshold similarity was already kept, so of any duplicate pair the higher
// scoring one survives. Ties keep input order. The input slice is not
// modified.
func Dedupe(videos []source.Video, threshold float64) []source.Video {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	ordered := make([]source.Video, len(videos))
	copy(ordered, videos)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TrendingScore > ordered[j].TrendingScore
	})

	kept := make([]source.Video, 0, len(ordered))
	titles := make([][]string, 0, len(ordered))
	seenURLs := make(map[string]bool, len(ordered))

	for _, v := range ordered {
		if v.URL != "" && seenURLs[v.URL] {
			continue
		}

		if v.URL != "" {
			seenURLs[v.URL] = true
		}

		norm := normalize(v.Title)
		if nearDuplicate(norm, titles, threshold) {
			continue
		}
		kept = append(kept, v)
		titles = append(titles, norm)
	}
	return kept
}

func nearDuplicate(norm []string, kept [][]string, threshold float64) bool {
	if len(norm) == 0 {
		return false
	}
	for _, t := range kept {
		if ratio(norm, t) >= threshold {
			return true
		}
	}
	return false
}

// Similarity returns the Ratcliff/Obershelp ratio of two titles after
// lowercasing and collapsing whitespace. Empty titles never match.
func Similarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if len(na) == 0 || len(nb) == 0 {
		return 0
	}
	return ratio(na, nb)
}

func ratio(a, b []string) float64 {
	if len(b) == 0 {
		return 0
	}
	return difflib.NewMatcher(a, b).Ratio()
}

// normalize splits a title into single-character tokens so the matcher
// compares characters.
func normalize(title string) []string {
	collapsed := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	if collapsed == "" {
		return nil
	}
	chars := make([]string, 0, len(collapsed))
	for _, r := range collapsed {
		chars = append(chars, string(r))
	}
	return chars
}
