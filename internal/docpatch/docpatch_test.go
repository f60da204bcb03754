package docpatch

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/starford/vaultgate/internal/apperr"
)

const projectDoc = "# Project\nintro\n## Notes\nn1\n## Tasks\n- a\n- b\n\n## Later\nx\n# Other\n## Tasks\nother\n"

func hp(segs ...string) HeadingPath { return HeadingPath{Segments: segs} }

func mustApply(t *testing.T, body string, target Target, op Operation, payload string) string {
	t.Helper()
	got, err := Apply(body, target, op, payload)
	if err != nil {
		t.Fatalf("Apply(%s, %s): %v", target, op, err)
	}
	return got
}

func TestApply_ReplaceHeadingBody(t *testing.T) {
	got := mustApply(t, "# A\nfoo\n# B\nbar\n", hp("B"), Replace, "baz\n")
	if want := "# A\nfoo\n# B\nbaz\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_FrontmatterCreatedOnEmptyDocument(t *testing.T) {
	got := mustApply(t, "", Frontmatter{}, Replace, "tags: x\n")
	if want := "---\ntags: x\n---\n\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_FrontmatterReplaceKeepsDelimiters(t *testing.T) {
	got := mustApply(t, "---\na: 1\n---\nbody\n", Frontmatter{}, Replace, "b: 2\n")
	if want := "---\nb: 2\n---\nbody\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_FrontmatterAppendBeforeClosingDelimiter(t *testing.T) {
	got := mustApply(t, "---\na: 1\n---\nbody\n", Frontmatter{}, AppendWithinSpan, "b: 2")
	if want := "---\na: 1\nb: 2\n---\nbody\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_UnterminatedFrontmatterIsText(t *testing.T) {
	body := "---\na: 1\nbody\n"
	got := mustApply(t, body, Frontmatter{}, Replace, "t: 1\n")
	if want := "---\nt: 1\n---\n\n" + body; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_AppendNestedHeadingKeepsTrailingBlank(t *testing.T) {
	got := mustApply(t, projectDoc, hp("Project", "Tasks"), AppendWithinSpan, "- c\n")
	want := strings.Replace(projectDoc, "- b\n\n", "- b\n- c\n\n", 1)
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_PrependHeadingBody(t *testing.T) {
	got := mustApply(t, "# A\nfoo\n# B\nbar\n", hp("A"), PrependWithinSpan, "first")
	if want := "# A\nfirst\nfoo\n# B\nbar\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_InsertAfterHeading(t *testing.T) {
	got := mustApply(t, "# A\nfoo\n# B\nbar\n", hp("A"), InsertAfter, "# New\nx\n")
	if want := "# A\nfoo\n# New\nx\n# B\nbar\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_AppendToLastLineWithoutNewline(t *testing.T) {
	got := mustApply(t, "# A\nfoo", hp("A"), AppendWithinSpan, "bar")
	if want := "# A\nfoo\nbar\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_PreservesCRLF(t *testing.T) {
	got := mustApply(t, "# A\r\nfoo\r\n# B\r\nbar\r\n", hp("B"), Replace, "baz\n")
	if want := "# A\r\nfoo\r\n# B\r\nbaz\r\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_IgnoresHeadingsInCodeFences(t *testing.T) {
	got := mustApply(t, "```\n# A\n```\n# A\nreal\n", hp("A"), Replace, "z\n")
	if want := "```\n# A\n```\n# A\nz\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApply_LongerFenceNotClosedByShorterRun(t *testing.T) {
	body := "````md\n```\n# Fake\n````\n# Real\nr\n"

	if _, err := Apply(body, hp("Fake"), Replace, "z"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("heading inside fence resolved, err = %v", err)
	}
	got := mustApply(t, body, hp("Real"), Replace, "z\n")
	if want := "````md\n```\n# Fake\n````\n# Real\nz\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCodeLines_Fences(t *testing.T) {
	cases := []struct {
		body string
		want []bool
	}{
		{"```\nx\n```\ny\n", []bool{true, true, true, false}},
		{"~~~~\n~~~\n~~~~~\ny\n", []bool{true, true, true, false}},
		{"```\n~~~\n```\ny\n", []bool{true, true, true, false}},
		{"```\n``` not a close\n```\ny\n", []bool{true, true, true, false}},
		{"``` a`b\n# H\n", []bool{false, false}},
		{"  ```go\nx\n  ```\n", []bool{true, true, true}},
		{"```\nunclosed\n# H\n", []bool{true, true, true}},
	}
	for _, tc := range cases {
		if got := Parse(tc.body).codeLines(); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("codeLines(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

func TestApply_Block(t *testing.T) {
	body := "para one\nline two ^blk\n\nother\n"

	got := mustApply(t, body, BlockID{ID: "blk"}, Replace, "new text\n")
	if want := "new text ^blk\n\nother\n"; got != want {
		t.Errorf("replace: got %q, want %q", got, want)
	}

	got = mustApply(t, body, BlockID{ID: "^blk"}, AppendWithinSpan, "added\n")
	if want := "para one\nadded\nline two ^blk\n\nother\n"; got != want {
		t.Errorf("append: got %q, want %q", got, want)
	}

	got = mustApply(t, body, BlockID{ID: "blk"}, InsertAfter, "after\n")
	if want := "para one\nline two ^blk\nafter\n\nother\n"; got != want {
		t.Errorf("insert after: got %q, want %q", got, want)
	}
}

func TestApply_BlockStopsAtHeading(t *testing.T) {
	got := mustApply(t, "# H\npara ^b\n", BlockID{ID: "b"}, Replace, "new")
	if want := "# H\nnew ^b\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = mustApply(t, "# H ^b\ntext\n", BlockID{ID: "b"}, InsertAfter, "after\n")
	if want := "# H ^b\nafter\ntext\n"; got != want {
		t.Errorf("heading block: got %q, want %q", got, want)
	}
}

func TestApply_BlockMarkerInsideFenceIgnored(t *testing.T) {
	body := "```\nx ^b\n```\ny ^b\n"
	got := mustApply(t, body, BlockID{ID: "b"}, Replace, "z")
	if want := "```\nx ^b\n```\nz ^b\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	if _, err := Apply("```\nonly ^c\n```\n", BlockID{ID: "c"}, Replace, "z"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("fenced marker resolved, err = %v", err)
	}
	if o := BuildOutline(body); !reflect.DeepEqual(o.Blocks, []string{"b"}) {
		t.Errorf("outline blocks = %v", o.Blocks)
	}
}

func TestApply_MissingBlockIsNotFound(t *testing.T) {
	body := "para ^other\n\ntext\n"
	for _, op := range []Operation{Replace, AppendWithinSpan, PrependWithinSpan, InsertAfter} {
		for _, payload := range []string{"", "x", "# h\n"} {
			_, err := Apply(body, BlockID{ID: "missing"}, op, payload)
			if !errors.Is(err, apperr.ErrNotFound) {
				t.Errorf("%s %q: err = %v, want ErrNotFound", op, payload, err)
			}
		}
	}
}

func TestApply_Whole(t *testing.T) {
	got := mustApply(t, "old\n", Whole{}, Replace, "new\n")
	if got != "new\n" {
		t.Errorf("replace = %q", got)
	}
	for _, payload := range []string{"abc", "", "a\r\nb", "x\n\n"} {
		if got := mustApply(t, "abc\n", Whole{}, Replace, payload); got != payload {
			t.Errorf("replace with %q = %q", payload, got)
		}
	}
	got = mustApply(t, "old", Whole{}, AppendWithinSpan, "more")
	if got != "old\nmore\n" {
		t.Errorf("append = %q", got)
	}
}

func TestApply_FrontmatterField(t *testing.T) {
	got := mustApply(t, "---\ntitle: T\n---\nbody\n", FrontmatterField{Key: "status"}, Replace, "done")
	if want := "---\ntitle: T\nstatus: done\n---\nbody\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = mustApply(t, "body\n", FrontmatterField{Key: "status"}, Replace, "done")
	if want := "---\nstatus: done\n---\n\nbody\n"; got != want {
		t.Errorf("created: got %q, want %q", got, want)
	}
}

func TestApply_FrontmatterFieldAppendToList(t *testing.T) {
	got := mustApply(t, "---\ntitle: T\ntags:\n  - a\n---\nbody\n", FrontmatterField{Key: "tags"}, AppendWithinSpan, "b")
	if !strings.HasSuffix(got, "---\nbody\n") {
		t.Fatalf("body changed: %q", got)
	}
	span := Parse(got).frontmatter()
	var fm struct {
		Title string   `yaml:"title"`
		Tags  []string `yaml:"tags"`
	}
	if err := yaml.Unmarshal([]byte(Parse(got).Slice(span.BodyStart, span.BodyEnd)), &fm); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fm.Title != "T" || !reflect.DeepEqual(fm.Tags, []string{"a", "b"}) {
		t.Errorf("frontmatter = %+v", fm)
	}
}

func TestApply_FrontmatterFieldInsertAfterRejected(t *testing.T) {
	_, err := Apply("---\na: 1\n---\n", FrontmatterField{Key: "a"}, InsertAfter, "x")
	if !errors.Is(err, apperr.ErrMalformedTarget) {
		t.Errorf("err = %v, want ErrMalformedTarget", err)
	}
}

func TestApply_MalformedTargets(t *testing.T) {
	cases := []Target{
		HeadingPath{},
		hp("A", " "),
		BlockID{},
		BlockID{ID: "has space"},
		FrontmatterField{},
		nil,
	}
	for _, tc := range cases {
		if _, err := Apply("# A\n", tc, Replace, "x"); !errors.Is(err, apperr.ErrMalformedTarget) {
			t.Errorf("%v: err = %v, want ErrMalformedTarget", tc, err)
		}
	}
}

func TestResolve_HeadingPaths(t *testing.T) {
	d := Parse(projectDoc)
	cases := []struct {
		path       []string
		start, end int
	}{
		{[]string{"Project"}, 0, 10},
		{[]string{"Project", "Tasks"}, 4, 8},
		{[]string{"## Project", "Notes"}, 2, 4},
		{[]string{"Other"}, 10, 13},
		{[]string{"Other", "Tasks"}, 11, 13},
	}
	for _, tc := range cases {
		span, err := Resolve(d, hp(tc.path...))
		if err != nil {
			t.Errorf("%v: %v", tc.path, err)
			continue
		}
		if span.Start != tc.start || span.End != tc.end || span.BodyStart != tc.start+1 || !span.Exists {
			t.Errorf("%v: span = %+v, want [%d,%d)", tc.path, span, tc.start, tc.end)
		}
	}
}

func TestResolve_LevelOneClosesAtNextLevelOne(t *testing.T) {
	span, err := Resolve(Parse("# A\n## B\n### C\ntext\n# D\n"), hp("A"))
	if err != nil {
		t.Fatal(err)
	}
	if span.Start != 0 || span.End != 4 {
		t.Errorf("span = %+v, want [0,4)", span)
	}
}

func TestResolve_OnlyDirectChildrenMatch(t *testing.T) {
	d := Parse("# A\n## B\n### C\n")
	if _, err := Resolve(d, hp("A", "C")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("A::C err = %v, want ErrNotFound", err)
	}
	if _, err := Resolve(d, hp("A", "B", "C")); err != nil {
		t.Errorf("A::B::C: %v", err)
	}
	if _, err := Resolve(d, hp("A", "Missing")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("partial path err = %v, want ErrNotFound", err)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	span, err := Resolve(Parse("# A\none\n# A\ntwo\n"), hp("A"))
	if err != nil {
		t.Fatal(err)
	}
	if span.Start != 0 || span.End != 2 {
		t.Errorf("span = %+v, want first occurrence", span)
	}
}

func TestResolve_FrontmatterAbsent(t *testing.T) {
	span, err := Resolve(Parse("# A\n"), Frontmatter{})
	if err != nil {
		t.Fatal(err)
	}
	if span != (Span{}) {
		t.Errorf("span = %+v, want zero span", span)
	}
}

func TestApply_OutsideSpanUnchanged(t *testing.T) {
	docs := []string{projectDoc, "---\nt: 1\n---\n# A\na\n## B\nb\n\n# C\nc\n"}
	paths := [][]string{{"Project"}, {"Project", "Tasks"}, {"Other", "Tasks"}, {"A", "B"}, {"C"}, {"A"}}
	for _, doc := range docs {
		d := Parse(doc)
		for _, p := range paths {
			span, err := Resolve(d, hp(p...))
			if err != nil {
				continue
			}
			got := mustApply(t, doc, hp(p...), Replace, "X\nY\n")
			prefix, suffix := d.Slice(0, span.BodyStart), d.Slice(span.BodyEnd, d.Len())
			if !strings.HasPrefix(got, prefix) || !strings.HasSuffix(got, suffix) {
				t.Errorf("%v: outside span changed: %q", p, got)
			}
		}
	}
}

func TestApply_RoundTripFindsNewContent(t *testing.T) {
	got := mustApply(t, projectDoc, hp("Project", "Tasks"), Replace, "- only\n")
	d := Parse(got)
	span, err := Resolve(d, hp("Project", "Tasks"))
	if err != nil {
		t.Fatal(err)
	}
	if body := d.Slice(span.BodyStart, span.BodyEnd); body != "- only\n" {
		t.Errorf("body = %q", body)
	}

	got = mustApply(t, "text ^b1\n", BlockID{ID: "b1"}, Replace, "fresh")
	d = Parse(got)
	span, err = Resolve(d, BlockID{ID: "b1"})
	if err != nil {
		t.Fatal(err)
	}
	if body := d.Slice(span.Start, span.End); body != "fresh ^b1\n" {
		t.Errorf("block = %q", body)
	}
}

func TestParseHeadingPath(t *testing.T) {
	segs, err := ParseHeadingPath("Project :: ## Tasks", "::")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(segs, []string{"Project", "Tasks"}) {
		t.Errorf("segs = %v", segs)
	}
	segs, err = ParseHeadingPath("Project > Tasks", " > ")
	if err != nil || !reflect.DeepEqual(segs, []string{"Project", "Tasks"}) {
		t.Errorf("custom delimiter: %v %v", segs, err)
	}
	for _, bad := range []string{"", "  ", "A::::B", "A::"} {
		if _, err := ParseHeadingPath(bad, "::"); !errors.Is(err, apperr.ErrMalformedTarget) {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		kind, value string
		want        Target
	}{
		{"frontmatter", "", Frontmatter{}},
		{"frontmatter", "status", FrontmatterField{Key: "status"}},
		{"block", "^abc", BlockID{ID: "abc"}},
		{"content", "", Whole{}},
	}
	for _, tc := range cases {
		got, err := ParseTarget(tc.kind, tc.value, "")
		if err != nil {
			t.Errorf("%s: %v", tc.kind, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s %q = %#v, want %#v", tc.kind, tc.value, got, tc.want)
		}
	}
	if _, err := ParseTarget("paragraph", "x", ""); !errors.Is(err, apperr.ErrMalformedTarget) {
		t.Errorf("unknown kind err = %v", err)
	}
}

func TestParseOperation(t *testing.T) {
	for _, name := range []string{"replace", "append", "prepend", "insert-after"} {
		op, err := ParseOperation(name)
		if err != nil || op.String() != name {
			t.Errorf("%s: %v %v", name, op, err)
		}
	}
	if _, err := ParseOperation("merge"); err == nil {
		t.Error("expected error for unknown operation")
	}
}

func TestBuildOutline(t *testing.T) {
	o := BuildOutline("---\ntitle: T\ntags: [a]\n---\n# A\ntext ^b1\n## B\n# C\nmore ^b2\n")
	if len(o.Headings) != 3 {
		t.Fatalf("headings = %+v", o.Headings)
	}
	if !reflect.DeepEqual(o.Headings[1].Path, []string{"A", "B"}) || o.Headings[1].Level != 2 {
		t.Errorf("heading B = %+v", o.Headings[1])
	}
	if !reflect.DeepEqual(o.Blocks, []string{"b1", "b2"}) {
		t.Errorf("blocks = %v", o.Blocks)
	}
	if !reflect.DeepEqual(o.FrontmatterFields, []string{"title", "tags"}) {
		t.Errorf("fields = %v", o.FrontmatterFields)
	}
}
