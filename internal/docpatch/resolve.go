package docpatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/vaultgate/internal/apperr"
)

var (
	headingRe = regexp.MustCompile(`^ {0,3}(#{1,6})(?:[ \t]+(.*?))?(?:[ \t]+#+)?[ \t]*$`)
	markerRe  = regexp.MustCompile(`(?:^|\s)\^([A-Za-z0-9][A-Za-z0-9-]*)[ \t]*$`)
	blockIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)
)

const frontmatterDelim = "---"

// Span is a half-open line range [Start, End) within a Document.
// [BodyStart, BodyEnd) is the part of the span that Replace substitutes:
// a heading's lines without the heading line itself, or the frontmatter
// lines without their delimiters.
type Span struct {
	Start     int
	End       int
	BodyStart int
	BodyEnd   int
	// Exists is false only for a frontmatter block that is not present yet.
	Exists bool
}

type heading struct {
	line  int
	level int
	text  string
}

// Resolve locates target inside d. Heading paths and block ids that cannot be
// found yield an error wrapping apperr.ErrNotFound; frontmatter and whole
// document targets always resolve.
func Resolve(d *Document, t Target) (Span, error) {
	if err := Validate(t); err != nil {
		return Span{}, err
	}
	switch v := t.(type) {
	case Frontmatter, FrontmatterField:
		return d.frontmatter(), nil
	case Whole:
		return Span{Start: 0, End: d.Len(), BodyStart: 0, BodyEnd: d.Len(), Exists: true}, nil
	case HeadingPath:
		return d.resolveHeading(v.Segments)
	case BlockID:
		return d.resolveBlock(v.id())
	default:
		return Span{}, fmt.Errorf("%w: unsupported target %T", apperr.ErrMalformedTarget, t)
	}
}

// frontmatter returns the span of the leading frontmatter block. An opening
// delimiter without a closing one is plain text.
func (d *Document) frontmatter() Span {
	if d.Len() == 0 || !isDelim(d.text(0)) {
		return Span{}
	}
	for i := 1; i < d.Len(); i++ {
		if isDelim(d.text(i)) {
			return Span{Start: 0, End: i + 1, BodyStart: 1, BodyEnd: i, Exists: true}
		}
	}
	return Span{}
}

func isDelim(s string) bool {
	return strings.TrimRight(s, " \t") == frontmatterDelim
}

// contentStart is the first line after the frontmatter block, if any.
func (d *Document) contentStart() int {
	return d.frontmatter().End
}

// fence is an open code fence: the run character and its length.
type fence struct {
	char byte
	n    int
}

// openFence reports whether s opens a code fence: three or more backticks or
// tildes. A backtick fence's info string may not contain a backtick.
func openFence(s string) (fence, bool) {
	s = strings.TrimLeft(s, " \t")
	if s == "" || (s[0] != '`' && s[0] != '~') {
		return fence{}, false
	}
	n := runLen(s, s[0])
	if n < 3 {
		return fence{}, false
	}
	if s[0] == '`' && strings.IndexByte(s[n:], '`') >= 0 {
		return fence{}, false
	}
	return fence{char: s[0], n: n}, true
}

// closes reports whether s closes f: a run of the same character at least
// as long as the opening one, followed only by whitespace.
func (f fence) closes(s string) bool {
	s = strings.TrimLeft(s, " \t")
	n := runLen(s, f.char)
	return n >= f.n && strings.TrimSpace(s[n:]) == ""
}

func runLen(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

// codeLines marks the lines that belong to fenced code, fence lines
// included. An unclosed fence runs to the end of the document.
func (d *Document) codeLines() []bool {
	code := make([]bool, d.Len())
	var open *fence
	for i := d.contentStart(); i < d.Len(); i++ {
		txt := d.text(i)
		if open != nil {
			code[i] = true
			if open.closes(txt) {
				open = nil
			}
			continue
		}
		if f, ok := openFence(txt); ok {
			code[i] = true
			open = &f
		}
	}
	return code
}

func isHeading(s string) bool { return headingRe.MatchString(s) }

// headings lists the ATX headings after the frontmatter, skipping fenced code.
func (d *Document) headings() []heading {
	var out []heading
	code := d.codeLines()
	for i := d.contentStart(); i < d.Len(); i++ {
		if code[i] {
			continue
		}
		m := headingRe.FindStringSubmatch(d.text(i))
		if m == nil {
			continue
		}
		out = append(out, heading{line: i, level: len(m[1]), text: strings.TrimSpace(m[2])})
	}
	return out
}

// resolveHeading walks the heading path one segment at a time. Each segment is
// matched against the direct headings of the span resolved so far: headings
// not nested under an earlier heading of the same span.
func (d *Document) resolveHeading(segs []string) (Span, error) {
	hs := d.headings()
	lo, hi := d.contentStart(), d.Len()
	var span Span
	for n, raw := range segs {
		seg := normalizeSegment(raw)
		minLevel := 7
		match := -1
		for j, h := range hs {
			if h.line < lo || h.line >= hi {
				continue
			}
			if h.level > minLevel {
				continue
			}
			minLevel = h.level
			if h.text == seg {
				match = j
				break
			}
		}
		if match < 0 {
			return Span{}, fmt.Errorf("heading %q: %w", strings.Join(segs[:n+1], DefaultHeadingDelimiter), apperr.ErrNotFound)
		}
		h := hs[match]
		end := hi
		for _, next := range hs[match+1:] {
			if next.line >= hi {
				break
			}
			if next.level <= h.level {
				end = next.line
				break
			}
		}
		span = Span{Start: h.line, End: end, BodyStart: h.line + 1, BodyEnd: end, Exists: true}
		lo, hi = h.line+1, end
	}
	return span, nil
}

// resolveBlock finds the first line outside fenced code tagged with ^id.
// The block extends back to the previous blank line, heading, code fence or
// the end of the frontmatter.
func (d *Document) resolveBlock(id string) (Span, error) {
	floor := d.contentStart()
	code := d.codeLines()
	for i := floor; i < d.Len(); i++ {
		if code[i] {
			continue
		}
		m := markerRe.FindStringSubmatch(d.text(i))
		if m == nil || m[1] != id {
			continue
		}
		start := i
		for start > floor && !isHeading(d.text(start)) {
			prev := start - 1
			if d.isBlank(prev) || code[prev] || isHeading(d.text(prev)) {
				break
			}
			start--
		}
		return Span{Start: start, End: i + 1, BodyStart: start, BodyEnd: i + 1, Exists: true}, nil
	}
	return Span{}, fmt.Errorf("block ^%s: %w", id, apperr.ErrNotFound)
}
