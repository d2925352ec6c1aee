package resolution

import (
	"fmt"
	"strings"

	"docsync/internal/types"
)

// MergeResult is the outcome of a semantic merge: the combined content and
// fields, the self-assessed effectiveness, and the spans that could not be
// reconciled. Discarded spans are always recorded, never silently dropped.
type MergeResult struct {
	Content       string
	Fields        []types.Field
	Effectiveness float64
	Discarded     []types.Span
}

// SemanticMerge combines both sides' edits into one snapshot. Lines common
// to both sides anchor the merge; between two anchors, a segment changed on
// only one side is taken as-is, while a segment changed on both sides is
// contested: the canonical lines win and the mirror lines are recorded as
// discarded, never silently dropped.
func SemanticMerge(canonical, mirror *types.DocumentSnapshot, analysis *types.Analysis) *MergeResult {
	canonLines := splitMergeLines(canonical.Content)
	mirrorLines := splitMergeLines(mirror.Content)
	anchors := commonLines(canonLines, mirrorLines)

	var out []string
	var discarded []types.Span
	unreconciled := 0
	ci, mi := 0, 0

	flush := func(canonEnd, mirrorEnd int) {
		cSeg := canonLines[ci:canonEnd]
		mSeg := mirrorLines[mi:mirrorEnd]
		for _, l := range cSeg {
			out = append(out, l.text)
		}
		switch {
		case len(cSeg) == 0:
			for _, l := range mSeg {
				out = append(out, l.text)
			}
		case len(mSeg) > 0:
			// Both sides rewrote the same region.
			for _, l := range mSeg {
				span := types.Span{Start: l.start, End: l.end, Text: l.text}
				if !span.IsWhitespace() {
					discarded = append(discarded, span)
					unreconciled++
				}
			}
		}
	}

	for _, anchor := range anchors {
		flush(anchor.canonIndex, anchor.mirrorIndex)
		out = append(out, canonLines[anchor.canonIndex].text)
		ci, mi = anchor.canonIndex+1, anchor.mirrorIndex+1
	}
	flush(len(canonLines), len(mirrorLines))

	total := len(analysis.Content.AddedSpans) + len(analysis.Content.RemovedSpans)
	effectiveness := 1.0
	if total > 0 {
		effectiveness = 1.0 - float64(unreconciled)/float64(total)
	}

	return &MergeResult{
		Content:       strings.Join(out, "\n"),
		Fields:        mergeFields(canonical.Fields, mirror.Fields, analysis.Metadata.FieldDiffs),
		Effectiveness: effectiveness,
		Discarded:     discarded,
	}
}

type mergeLine struct {
	text  string
	start int
	end   int
}

func splitMergeLines(s string) []mergeLine {
	var lines []mergeLine
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			lines = append(lines, mergeLine{text: s[start:i], start: start, end: i})
			start = i + 1
		}
	}
	return lines
}

type anchor struct {
	canonIndex  int
	mirrorIndex int
}

// commonLines is the longest common subsequence of the two line slices,
// returned as index pairs in ascending order.
func commonLines(a, b []mergeLine) []anchor {
	// Standard LCS table; documents are small enough for the quadratic cost.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i].text == b[j].text {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var anchors []anchor
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].text == b[j].text:
			anchors = append(anchors, anchor{canonIndex: i, mirrorIndex: j})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			i++
		default:
			j++
		}
	}
	return anchors
}

// mergeFields merges structured fields: canonical is the base, list-valued
// diverged fields merge as a union, and mirror-only fields are appended.
// Scalar divergences keep the canonical value; identity and governed
// divergences never reach a semantic merge in the first place.
func mergeFields(canonical, mirror []types.Field, diffs []types.FieldDiff) []types.Field {
	diverged := make(map[string]types.FieldDiff, len(diffs))
	for _, fd := range diffs {
		diverged[fd.Name] = fd
	}

	merged := make([]types.Field, 0, len(canonical))
	seen := make(map[string]bool, len(canonical))
	for _, f := range canonical {
		seen[f.Name] = true
		if fd, ok := diverged[f.Name]; ok {
			if union, ok := unionValues(fd.Canonical, fd.Mirror); ok {
				merged = append(merged, types.Field{Name: f.Name, Value: union})
				continue
			}
		}
		merged = append(merged, f)
	}
	for _, f := range mirror {
		if !seen[f.Name] {
			merged = append(merged, f)
		}
	}
	return merged
}

// unionValues merges two list values preserving canonical order, mirror-only
// entries appended. Non-list values do not union.
func unionValues(canonical, mirror any) (any, bool) {
	a, okA := toStringSlice(canonical)
	b, okB := toStringSlice(mirror)
	if !okA || !okB {
		return nil, false
	}

	seen := make(map[string]bool, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for _, lists := range [][]string{a, b} {
		for _, v := range lists {
			if !seen[v] {
				seen[v] = true
				union = append(union, v)
			}
		}
	}
	return union, true
}

func toStringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, true
	default:
		return nil, false
	}
}
