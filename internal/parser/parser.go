// Package parser extracts frontmatter, wikilinks and tags from Markdown notes
// for the structured note view.
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/vaultgate/internal/docpatch"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[(.*?)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

// Result holds the output of parsing a Markdown note.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []string
	Tags        []string
	Title       string
	Checksum    string
}

// Parse splits content into frontmatter and body and collects links and tags.
// Frontmatter that is not valid YAML is left in the body.
func Parse(content string) Result {
	doc := docpatch.Parse(content)
	span, _ := docpatch.Resolve(doc, docpatch.Frontmatter{})

	res := Result{Body: content, Checksum: Checksum(content)}
	if span.Exists {
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(doc.Slice(span.BodyStart, span.BodyEnd)), &fm); err == nil {
			res.Frontmatter = fm
			res.Body = doc.Slice(span.End, doc.Len())
		}
	}
	res.Links = extractLinks(res.Body)
	res.Tags = extractTags(res.Body, res.Frontmatter)
	res.Title = deriveTitle(res.Frontmatter, res.Body)
	return res
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// extractLinks returns deduplicated wikilink targets. Aliases and heading or
// block anchors are dropped: [[Note#Part|Alias]] links to Note.
func extractLinks(body string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range wikilinkRe.FindAllStringSubmatch(body, -1) {
		target := m[1]
		if i := strings.IndexAny(target, "|#^"); i >= 0 {
			target = target[:i]
		}
		target = strings.TrimSpace(target)
		if target == "" {
			continue
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		out = append(out, target)
	}
	return out
}

// extractTags collects the frontmatter "tags" field (list or comma/space
// separated string) followed by inline #tags outside fenced code.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	out := []string{}
	add := func(t string) {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			add(s)
		}
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
