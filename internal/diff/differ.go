// Package diff implements the snapshot differencer: a pure, deterministic
// comparison of two snapshots of the same document across text, structured
// fields, and outbound references.
package diff

import (
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	engerr "docsync/internal/errors"
	"docsync/internal/types"
)

// FieldChange is one structured-field divergence found by the differencer.
// Policy classification happens later in the metadata analyzer; the
// differencer only reports raw changes.
type FieldChange struct {
	Name             string `json:"name"`
	Canonical        any    `json:"canonical_value"`
	Mirror           any    `json:"mirror_value"`
	CanonicalPresent bool   `json:"canonical_present"`
	MirrorPresent    bool   `json:"mirror_present"`
}

// Result is the raw diff between a canonical and a mirror snapshot.
type Result struct {
	DocumentID string `json:"document_id"`

	// Identical means the content fingerprints match exactly.
	Identical bool `json:"identical"`

	// WhitespaceOnly means the contents differ only in whitespace.
	WhitespaceOnly bool `json:"whitespace_only"`

	// Similarity is token-set (Jaccard) similarity over normalized text.
	Similarity float64 `json:"similarity"`

	// AddedSpans are text spans present only in the mirror; RemovedSpans
	// are present only in the canonical side.
	AddedSpans   []types.Span `json:"added_spans,omitempty"`
	RemovedSpans []types.Span `json:"removed_spans,omitempty"`

	FieldChanges []FieldChange `json:"field_changes,omitempty"`

	// AddedReferences are outbound references only the mirror holds;
	// RemovedReferences only the canonical side holds.
	AddedReferences   []string `json:"added_references,omitempty"`
	RemovedReferences []string `json:"removed_references,omitempty"`
}

// HasChanges reports whether any dimension diverged.
func (r *Result) HasChanges() bool {
	return !r.Identical || len(r.FieldChanges) > 0 ||
		len(r.AddedReferences) > 0 || len(r.RemovedReferences) > 0
}

// Compare diffs two snapshots of the same logical document. It fails with
// INCOMPARABLE_SNAPSHOTS when the snapshots belong to different documents.
func Compare(canonical, mirror *types.DocumentSnapshot) (*Result, error) {
	if canonical.DocumentID != mirror.DocumentID {
		return nil, engerr.IncomparableSnapshots(canonical.DocumentID, mirror.DocumentID)
	}

	result := &Result{DocumentID: canonical.DocumentID}

	canonText := norm.NFC.String(canonical.Content)
	mirrorText := norm.NFC.String(mirror.Content)

	result.Identical = canonical.Fingerprint != "" && canonical.Fingerprint == mirror.Fingerprint ||
		canonText == mirrorText
	result.WhitespaceOnly = !result.Identical && collapseWhitespace(canonText) == collapseWhitespace(mirrorText)
	result.Similarity = tokenSimilarity(canonText, mirrorText)

	if !result.Identical {
		result.RemovedSpans, result.AddedSpans = lineSpans(canonText, mirrorText)
	}

	result.FieldChanges = fieldChanges(canonical, mirror)
	result.RemovedReferences, result.AddedReferences = referenceDiff(canonical.Outbound, mirror.Outbound)

	return result, nil
}

// tokenSimilarity is Jaccard similarity over lowercase word tokens.
func tokenSimilarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}

	intersection := 0
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if !setB[w] {
			setB[w] = true
			if setA[w] {
				intersection++
			}
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// lineSpans computes line-level spans unique to each side. Lines are matched
// as a multiset, so moved lines do not count as changes; ordering changes
// surface through similarity and the reorganization significance instead.
func lineSpans(canonical, mirror string) (removed, added []types.Span) {
	canonLines := splitLines(canonical)
	mirrorLines := splitLines(mirror)

	counts := make(map[string]int)
	for _, l := range mirrorLines {
		counts[l.text]++
	}
	for _, l := range canonLines {
		if counts[l.text] > 0 {
			counts[l.text]--
		} else if strings.TrimSpace(l.text) != "" {
			removed = append(removed, types.Span{Start: l.start, End: l.end, Text: l.text})
		}
	}

	counts = make(map[string]int)
	for _, l := range canonLines {
		counts[l.text]++
	}
	for _, l := range mirrorLines {
		if counts[l.text] > 0 {
			counts[l.text]--
		} else if strings.TrimSpace(l.text) != "" {
			added = append(added, types.Span{Start: l.start, End: l.end, Text: l.text})
		}
	}

	return removed, added
}

type line struct {
	text  string
	start int
	end   int
}

func splitLines(s string) []line {
	var lines []line
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			lines = append(lines, line{text: s[start:i], start: start, end: i})
			start = i + 1
		}
	}
	return lines
}

func fieldChanges(canonical, mirror *types.DocumentSnapshot) []FieldChange {
	var changes []FieldChange
	seen := make(map[string]bool)

	for _, f := range canonical.Fields {
		seen[f.Name] = true
		mirrorVal, ok := mirror.FieldValue(f.Name)
		if !ok {
			changes = append(changes, FieldChange{
				Name: f.Name, Canonical: f.Value, CanonicalPresent: true,
			})
			continue
		}
		if !reflect.DeepEqual(f.Value, mirrorVal) {
			changes = append(changes, FieldChange{
				Name: f.Name, Canonical: f.Value, Mirror: mirrorVal,
				CanonicalPresent: true, MirrorPresent: true,
			})
		}
	}

	for _, f := range mirror.Fields {
		if !seen[f.Name] {
			changes = append(changes, FieldChange{
				Name: f.Name, Mirror: f.Value, MirrorPresent: true,
			})
		}
	}

	return changes
}

func referenceDiff(canonical, mirror []string) (removed, added []string) {
	canonSet := make(map[string]bool, len(canonical))
	for _, ref := range canonical {
		canonSet[ref] = true
	}
	mirrorSet := make(map[string]bool, len(mirror))
	for _, ref := range mirror {
		mirrorSet[ref] = true
	}

	for ref := range canonSet {
		if !mirrorSet[ref] {
			removed = append(removed, ref)
		}
	}
	for ref := range mirrorSet {
		if !canonSet[ref] {
			added = append(added, ref)
		}
	}

	sort.Strings(removed)
	sort.Strings(added)
	return removed, added
}
