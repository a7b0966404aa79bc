package reconcile

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dshills/tandem/internal/finding"
)

const titlePrefixRunes = 50

// DedupKey identifies findings that describe the same underlying issue.
type DedupKey struct {
	File        string
	StartLine   int
	TitlePrefix string
}

// Key returns the dedup key of a finding.
func Key(f finding.Finding) DedupKey {
	return DedupKey{
		File:        f.Location.File,
		StartLine:   f.Location.StartLine,
		TitlePrefix: normalizeTitle(f.Title),
	}
}

func normalizeTitle(title string) string {
	t := strings.TrimSpace(strings.ToLower(title))
	if utf8.RuneCountInString(t) > titlePrefixRunes {
		t = string([]rune(t)[:titlePrefixRunes])
	}
	return t
}

// Merge concatenates finding lists. Order carries no meaning after merge.
func Merge(lists ...[]finding.Finding) []finding.Finding {
	var n int
	for _, l := range lists {
		n += len(l)
	}
	out := make([]finding.Finding, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Deduplicate collapses findings that share a dedup key. The finding with the
// strictly higher confidence survives; on a tie the first one seen survives.
// The survivor records the other source in AlsoFoundBy and adopts its fix when
// it has none of its own. The input slice is left untouched.
func Deduplicate(findings []finding.Finding) []finding.Finding {
	index := make(map[DedupKey]int, len(findings))
	out := make([]finding.Finding, 0, len(findings))

	for _, f := range findings {
		f = f.Clone()
		k := Key(f)
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, f)
			continue
		}

		existing := out[i]
		winner, loser := existing, f
		if f.Confidence > existing.Confidence {
			winner, loser = f, existing
		}
		out[i] = absorb(winner, loser)
	}
	return out
}

func absorb(winner, loser finding.Finding) finding.Finding {
	winner.AlsoFoundBy = addSource(winner.AlsoFoundBy, loser.Source)
	for _, s := range loser.AlsoFoundBy {
		winner.AlsoFoundBy = addSource(winner.AlsoFoundBy, s)
	}
	if !winner.HasFix() && loser.HasFix() {
		winner.Fix = loser.Fix
	}
	return winner
}

// addSource treats the list as a set.
func addSource(list []finding.Source, s finding.Source) []finding.Source {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}
