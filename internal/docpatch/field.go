package docpatch

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/vaultgate/internal/apperr"
)

// applyField edits one key of the frontmatter mapping. Only the frontmatter
// lines are rewritten; the block is created when it does not exist.
func (d *Document) applyField(key string, op Operation, payload string) (string, error) {
	if op == InsertAfter {
		return "", fmt.Errorf("%w: %s does not apply to frontmatter field %q", apperr.ErrMalformedTarget, op, key)
	}
	span := d.frontmatter()

	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if span.Exists {
		m, err := decodeMapping(d.Slice(span.BodyStart, span.BodyEnd))
		if err != nil {
			return "", err
		}
		if m != nil {
			mapping = m
		}
	}

	value := parseValue(payload)
	idx := mappingIndex(mapping, key)
	switch {
	case idx < 0:
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
	case op == Replace:
		mapping.Content[idx+1] = value
	default:
		merged, err := mergeValue(mapping.Content[idx+1], value, op == PrependWithinSpan)
		if err != nil {
			return "", fmt.Errorf("frontmatter field %q: %w", key, err)
		}
		mapping.Content[idx+1] = merged
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode frontmatter: %w", err)
	}
	lines := d.payloadLines(buf.String())

	if !span.Exists {
		return d.splice(0, 0, d.wrapFrontmatter(lines)), nil
	}
	return d.splice(span.BodyStart, span.BodyEnd-span.BodyStart, lines), nil
}

// decodeMapping parses a frontmatter body. An empty body yields nil.
func decodeMapping(src string) (*yaml.Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("%w: frontmatter is not valid YAML: %v", apperr.ErrMalformedTarget, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: frontmatter is not a mapping", apperr.ErrMalformedTarget)
	}
	return doc.Content[0], nil
}

func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

// parseValue reads payload as a YAML value, falling back to a plain string.
func parseValue(payload string) *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &doc); err == nil &&
		doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 {
		return doc.Content[0]
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: strings.TrimSpace(payload)}
}

func mergeValue(cur, add *yaml.Node, prepend bool) (*yaml.Node, error) {
	switch {
	case cur.Kind == yaml.SequenceNode:
		items := []*yaml.Node{add}
		if add.Kind == yaml.SequenceNode {
			items = add.Content
		}
		if prepend {
			cur.Content = append(append([]*yaml.Node(nil), items...), cur.Content...)
		} else {
			cur.Content = append(cur.Content, items...)
		}
		return cur, nil
	case cur.Kind == yaml.ScalarNode && add.Kind == yaml.ScalarNode:
		v := cur.Value + add.Value
		if prepend {
			v = add.Value + cur.Value
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}, nil
	case cur.Kind == yaml.MappingNode && add.Kind == yaml.MappingNode:
		if prepend {
			cur.Content = append(append([]*yaml.Node(nil), add.Content...), cur.Content...)
		} else {
			cur.Content = append(cur.Content, add.Content...)
		}
		return cur, nil
	}
	return nil, fmt.Errorf("%w: cannot combine YAML values of different shapes", apperr.ErrMalformedTarget)
}
