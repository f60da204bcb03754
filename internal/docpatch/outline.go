package docpatch

// OutlineHeading is one heading of a document map.
type OutlineHeading struct {
	Level int      `json:"level"`
	Text  string   `json:"text"`
	Path  []string `json:"path"`
	Line  int      `json:"line"`
}

// Outline lists everything in a document that a patch can address.
type Outline struct {
	Headings          []OutlineHeading `json:"headings"`
	Blocks            []string         `json:"blocks"`
	FrontmatterFields []string         `json:"frontmatter_fields"`
}

// BuildOutline returns the document map of body. Heading paths use the same
// nesting Resolve uses; a path repeating an earlier one is listed once.
func BuildOutline(body string) Outline {
	d := Parse(body)
	out := Outline{
		Headings:          []OutlineHeading{},
		Blocks:            []string{},
		FrontmatterFields: []string{},
	}

	var stack []heading
	seenPath := make(map[string]struct{})
	for _, h := range d.headings() {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
		path := make([]string, len(stack))
		for i, s := range stack {
			path[i] = s.text
		}
		// Later duplicates are shadowed by first-match resolution.
		key := HeadingPath{Segments: path}.String()
		if _, dup := seenPath[key]; dup {
			continue
		}
		seenPath[key] = struct{}{}
		out.Headings = append(out.Headings, OutlineHeading{Level: h.level, Text: h.text, Path: path, Line: h.line + 1})
	}

	seenBlock := make(map[string]struct{})
	code := d.codeLines()
	for i := d.contentStart(); i < d.Len(); i++ {
		if code[i] {
			continue
		}
		if m := markerRe.FindStringSubmatch(d.text(i)); m != nil {
			if _, dup := seenBlock[m[1]]; !dup {
				seenBlock[m[1]] = struct{}{}
				out.Blocks = append(out.Blocks, m[1])
			}
		}
	}

	if fm := d.frontmatter(); fm.Exists {
		if m, err := decodeMapping(d.Slice(fm.BodyStart, fm.BodyEnd)); err == nil && m != nil {
			for i := 0; i+1 < len(m.Content); i += 2 {
				out.FrontmatterFields = append(out.FrontmatterFields, m.Content[i].Value)
			}
		}
	}
	return out
}
