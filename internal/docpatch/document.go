// Package docpatch locates and rewrites addressable regions of a Markdown note
// (frontmatter, heading sections, blocks) while leaving every other byte intact.
package docpatch

import "strings"

// Document is a note body split into lines. Each line keeps its own
// terminator so that joining the lines reproduces the original body exactly.
type Document struct {
	lines []string
	eol   string // dominant line ending, used for inserted lines
}

// Parse splits body into lines and detects the dominant line ending.
func Parse(body string) *Document {
	d := &Document{eol: "\n"}
	crlf, lf := 0, 0
	for body != "" {
		i := strings.IndexByte(body, '\n')
		if i < 0 {
			d.lines = append(d.lines, body)
			break
		}
		line := body[:i+1]
		if strings.HasSuffix(line, "\r\n") {
			crlf++
		} else {
			lf++
		}
		d.lines = append(d.lines, line)
		body = body[i+1:]
	}
	if crlf > lf {
		d.eol = "\r\n"
	}
	return d
}

// Len returns the number of lines.
func (d *Document) Len() int { return len(d.lines) }

// LineEnding returns the dominant line ending of the document.
func (d *Document) LineEnding() string { return d.eol }

// String joins the lines back into a body.
func (d *Document) String() string { return strings.Join(d.lines, "") }

// text returns line i without its terminator.
func (d *Document) text(i int) string {
	return strings.TrimRight(d.lines[i], "\r\n")
}

func (d *Document) isBlank(i int) bool {
	return strings.TrimSpace(d.text(i)) == ""
}

// Slice returns lines [start, end) joined.
func (d *Document) Slice(start, end int) string {
	return strings.Join(d.lines[start:end], "")
}

// payloadLines splits payload on its own newline boundaries and terminates
// every resulting line with the document's line ending.
func (d *Document) payloadLines(payload string) []string {
	if payload == "" {
		return nil
	}
	parts := strings.Split(payload, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSuffix(p, "\r") + d.eol
	}
	return out
}

// splice removes n lines at position at, inserts ins in their place and
// returns the resulting body. The receiver is not modified.
func (d *Document) splice(at, n int, ins []string) string {
	out := make([]string, 0, len(d.lines)-n+len(ins))
	out = append(out, d.lines[:at]...)
	// The last line of a body may lack a terminator; it needs one once
	// something follows it.
	if len(ins) > 0 && at > 0 && !strings.HasSuffix(out[at-1], "\n") {
		out[at-1] += d.eol
	}
	out = append(out, ins...)
	out = append(out, d.lines[at+n:]...)
	return strings.Join(out, "")
}
