// Package snapshot builds immutable DocumentSnapshots from raw store
// documents: it normalizes content, fingerprints it, extracts outbound
// references from markdown links, and coerces loosely-typed structured
// fields into canonical form.
package snapshot

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"

	"docsync/internal/types"
)

// RawDocument is what the canonical or mirror store hands us: content plus a
// loosely-typed field map. Mirror stores in particular return untyped JSON.
type RawDocument struct {
	DocumentID string
	Content    string
	Fields     map[string]any
	// FieldOrder preserves the on-disk field ordering when the store
	// provides it; missing names fall back to sorted order.
	FieldOrder []string
	CapturedAt time.Time
}

// Capture builds an immutable snapshot from a raw document.
func Capture(doc *RawDocument, origin types.Origin) (*types.DocumentSnapshot, error) {
	if strings.TrimSpace(doc.DocumentID) == "" {
		return nil, fmt.Errorf("raw document has no document id")
	}

	capturedAt := doc.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	content := norm.NFC.String(doc.Content)

	snap := &types.DocumentSnapshot{
		ID:          uuid.New().String(),
		DocumentID:  doc.DocumentID,
		Content:     content,
		Fields:      orderedFields(doc.Fields, doc.FieldOrder),
		Outbound:    ExtractReferences(content),
		Fingerprint: Fingerprint(content),
		CapturedAt:  capturedAt,
		Origin:      origin,
	}

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("captured snapshot invalid: %w", err)
	}
	return snap, nil
}

// Fingerprint computes the content hash used for identity comparison.
func Fingerprint(content string) string {
	sum := blake2b.Sum256([]byte(norm.NFC.String(content)))
	return hex.EncodeToString(sum[:])
}

// ExtractReferences collects outbound document references from markdown
// links. External URLs are not document references and are skipped.
func ExtractReferences(content string) []string {
	md := goldmark.New()
	reader := text.NewReader([]byte(content))
	root := md.Parser().Parse(reader)

	refs := make(map[string]bool)
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		var dest string
		switch node := n.(type) {
		case *ast.Link:
			dest = string(node.Destination)
		case *ast.Image:
			dest = string(node.Destination)
		default:
			return ast.WalkContinue, nil
		}
		if ref, ok := normalizeReference(dest); ok {
			refs[ref] = true
		}
		return ast.WalkContinue, nil
	})

	out := make([]string, 0, len(refs))
	for ref := range refs {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func normalizeReference(dest string) (string, bool) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", false
	}
	if strings.Contains(dest, "://") || strings.HasPrefix(dest, "mailto:") {
		return "", false
	}
	// Drop anchors; an in-document anchor alone is not a reference.
	if idx := strings.IndexByte(dest, '#'); idx >= 0 {
		dest = dest[:idx]
		if dest == "" {
			return "", false
		}
	}
	dest = strings.TrimSuffix(dest, ".md")
	return dest, true
}

// wellKnownFields are the structured fields the engine understands natively.
// Mirror stores frequently hand these back weakly typed (numbers as strings,
// single tags as scalars); mapstructure's weak decoding normalizes them.
type wellKnownFields struct {
	ID        string   `mapstructure:"id"`
	Type      string   `mapstructure:"type"`
	CreatedAt string   `mapstructure:"created_at"`
	Title     string   `mapstructure:"title"`
	Status    string   `mapstructure:"status"`
	Tags      []string `mapstructure:"tags"`
}

func orderedFields(raw map[string]any, order []string) []types.Field {
	if len(raw) == 0 {
		return nil
	}

	normalized := normalizeKnown(raw)

	names := make([]string, 0, len(normalized))
	seen := make(map[string]bool, len(normalized))
	for _, name := range order {
		if _, ok := normalized[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(normalized))
	for name := range normalized {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	fields := make([]types.Field, 0, len(names))
	for _, name := range names {
		fields = append(fields, types.Field{Name: name, Value: normalized[name]})
	}
	return fields
}

// normalizeKnown coerces well-known fields to their canonical Go types and
// passes everything else through untouched.
func normalizeKnown(raw map[string]any) map[string]any {
	var known wellKnownFields
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &known,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return raw
	}
	if err := decoder.Decode(raw); err != nil {
		// Leave undecodable values as-is; the metadata analyzer reports
		// malformed fields as a degraded analysis, never a hard failure.
		return raw
	}

	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	if _, ok := raw["id"]; ok {
		out["id"] = known.ID
	}
	if _, ok := raw["type"]; ok {
		out["type"] = known.Type
	}
	if _, ok := raw["created_at"]; ok {
		out["created_at"] = known.CreatedAt
	}
	if _, ok := raw["title"]; ok {
		out["title"] = known.Title
	}
	if _, ok := raw["status"]; ok {
		out["status"] = known.Status
	}
	if _, ok := raw["tags"]; ok {
		out["tags"] = known.Tags
	}
	return out
}
