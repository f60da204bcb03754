package docpatch

import (
	"fmt"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

// Target addresses a region of a document. The set of implementations is
// closed: Frontmatter, FrontmatterField, HeadingPath, BlockID and Whole.
type Target interface {
	fmt.Stringer
	target()
}

// Frontmatter addresses the leading --- delimited metadata block.
type Frontmatter struct{}

// FrontmatterField addresses a single key inside the frontmatter block.
type FrontmatterField struct {
	Key string
}

// HeadingPath addresses a heading section by the texts of its ancestors,
// outermost first.
type HeadingPath struct {
	Segments []string
}

// BlockID addresses the block whose last line carries the marker ^ID.
type BlockID struct {
	ID string
}

// Whole addresses the entire document.
type Whole struct{}

func (Frontmatter) target()      {}
func (FrontmatterField) target() {}
func (HeadingPath) target()      {}
func (BlockID) target()          {}
func (Whole) target()            {}

func (Frontmatter) String() string        { return "frontmatter" }
func (f FrontmatterField) String() string { return "frontmatter:" + f.Key }
func (h HeadingPath) String() string      { return "heading:" + strings.Join(h.Segments, "::") }
func (b BlockID) String() string          { return "block:^" + b.id() }
func (Whole) String() string              { return "content" }

func (b BlockID) id() string { return strings.TrimPrefix(b.ID, "^") }

// Target kinds accepted by ParseTarget.
const (
	KindHeading     = "heading"
	KindBlock       = "block"
	KindFrontmatter = "frontmatter"
	KindContent     = "content"
)

// DefaultHeadingDelimiter separates heading path segments in caller input.
const DefaultHeadingDelimiter = "::"

// ParseTarget builds a Target from a kind name and its value. For the
// frontmatter kind an empty value addresses the whole block and a non-empty
// value addresses a single key.
func ParseTarget(kind, value, delim string) (Target, error) {
	switch kind {
	case KindHeading:
		segs, err := ParseHeadingPath(value, delim)
		if err != nil {
			return nil, err
		}
		return HeadingPath{Segments: segs}, nil
	case KindBlock:
		b := BlockID{ID: strings.TrimPrefix(strings.TrimSpace(value), "^")}
		if err := Validate(b); err != nil {
			return nil, err
		}
		return b, nil
	case KindFrontmatter:
		if key := strings.TrimSpace(value); key != "" {
			return FrontmatterField{Key: key}, nil
		}
		return Frontmatter{}, nil
	case KindContent, "document":
		return Whole{}, nil
	}
	return nil, fmt.Errorf("%w: unknown target type %q", apperr.ErrMalformedTarget, kind)
}

// ParseHeadingPath splits s on delim and normalises each segment. Leading
// # markers are dropped so that "## Tasks" and "Tasks" address the same heading.
func ParseHeadingPath(s, delim string) ([]string, error) {
	if delim == "" {
		delim = DefaultHeadingDelimiter
	}
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty heading path", apperr.ErrMalformedTarget)
	}
	parts := strings.Split(s, delim)
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		seg := normalizeSegment(p)
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in heading path %q", apperr.ErrMalformedTarget, s)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func normalizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		s = strings.TrimSpace(strings.TrimLeft(s, "#"))
	}
	return s
}

// Validate rejects targets that can never resolve, before any I/O happens.
func Validate(t Target) error {
	switch v := t.(type) {
	case Frontmatter, Whole:
		return nil
	case FrontmatterField:
		if strings.TrimSpace(v.Key) == "" {
			return fmt.Errorf("%w: empty frontmatter key", apperr.ErrMalformedTarget)
		}
		return nil
	case HeadingPath:
		if len(v.Segments) == 0 {
			return fmt.Errorf("%w: empty heading path", apperr.ErrMalformedTarget)
		}
		for _, s := range v.Segments {
			if normalizeSegment(s) == "" {
				return fmt.Errorf("%w: empty heading path segment", apperr.ErrMalformedTarget)
			}
		}
		return nil
	case BlockID:
		if !blockIDRe.MatchString(v.id()) {
			return fmt.Errorf("%w: invalid block id %q", apperr.ErrMalformedTarget, v.ID)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: no target", apperr.ErrMalformedTarget)
	default:
		return fmt.Errorf("%w: unsupported target %T", apperr.ErrMalformedTarget, t)
	}
}

// Operation is the kind of edit applied at a resolved span.
type Operation int

const (
	// Replace substitutes the span's content.
	Replace Operation = iota + 1
	// AppendWithinSpan adds content at the end of the span.
	AppendWithinSpan
	// PrependWithinSpan adds content at the start of the span's body.
	PrependWithinSpan
	// InsertAfter adds content as a sibling right after the span.
	InsertAfter
)

var operationNames = map[Operation]string{
	Replace:           "replace",
	AppendWithinSpan:  "append",
	PrependWithinSpan: "prepend",
	InsertAfter:       "insert-after",
}

func (o Operation) String() string {
	if s, ok := operationNames[o]; ok {
		return s
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

// Valid reports whether o is one of the defined operations.
func (o Operation) Valid() bool {
	_, ok := operationNames[o]
	return ok
}

// ParseOperation maps an operation name to an Operation.
func ParseOperation(s string) (Operation, error) {
	for op, name := range operationNames {
		if name == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown operation %q", apperr.ErrMalformedTarget, s)
}
