package docpatch

import (
	"fmt"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

// Apply performs op with payload at target inside body and returns the new
// body. Lines outside the resolved span and the insertion point are returned
// unchanged. When the target cannot be found the error wraps
// apperr.ErrNotFound and no new body is produced. Replacing the whole
// document yields payload byte for byte.
func Apply(body string, t Target, op Operation, payload string) (string, error) {
	if err := Validate(t); err != nil {
		return "", err
	}
	if !op.Valid() {
		return "", fmt.Errorf("%w: unknown operation %d", apperr.ErrMalformedTarget, int(op))
	}

	d := Parse(body)
	if f, ok := t.(FrontmatterField); ok {
		return d.applyField(f.Key, op, payload)
	}

	if _, ok := t.(Whole); ok && op == Replace {
		return payload, nil
	}

	span, err := Resolve(d, t)
	if err != nil {
		return "", err
	}
	lines := d.payloadLines(payload)

	if !span.Exists {
		return d.splice(0, 0, d.wrapFrontmatter(lines)), nil
	}

	switch op {
	case Replace:
		if b, ok := t.(BlockID); ok {
			return d.splice(span.Start, span.End-span.Start, d.attachMarker(lines, b.id())), nil
		}
		return d.splice(span.BodyStart, span.BodyEnd-span.BodyStart, lines), nil
	case AppendWithinSpan:
		return d.splice(d.appendPoint(t, span), 0, lines), nil
	case PrependWithinSpan:
		return d.splice(span.BodyStart, 0, lines), nil
	case InsertAfter:
		return d.splice(span.End, 0, lines), nil
	}
	return "", fmt.Errorf("%w: unknown operation %d", apperr.ErrMalformedTarget, int(op))
}

// appendPoint is where AppendWithinSpan inserts. A heading section keeps its
// trailing blank lines after the new content, a block keeps its marker line
// last, and frontmatter keeps its closing delimiter.
func (d *Document) appendPoint(t Target, span Span) int {
	switch t.(type) {
	case HeadingPath:
		at := span.BodyEnd
		for at > span.BodyStart && d.isBlank(at-1) {
			at--
		}
		return at
	case BlockID:
		return span.End - 1
	default:
		return span.BodyEnd
	}
}

// wrapFrontmatter builds a new frontmatter block followed by a blank line.
func (d *Document) wrapFrontmatter(lines []string) []string {
	out := make([]string, 0, len(lines)+3)
	out = append(out, frontmatterDelim+d.eol)
	out = append(out, lines...)
	return append(out, frontmatterDelim+d.eol, d.eol)
}

// attachMarker makes sure the last replacement line still carries ^id.
func (d *Document) attachMarker(lines []string, id string) []string {
	marker := "^" + id
	if len(lines) == 0 {
		return []string{marker + d.eol}
	}
	out := append([]string(nil), lines...)
	last := strings.TrimRight(out[len(out)-1], "\r\n")
	if m := markerRe.FindStringSubmatch(last); m != nil && m[1] == id {
		return out
	}
	if strings.TrimSpace(last) == "" {
		out[len(out)-1] = marker + d.eol
	} else {
		out[len(out)-1] = last + " " + marker + d.eol
	}
	return out
}
