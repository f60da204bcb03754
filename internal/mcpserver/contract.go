package mcpserver

// PatchContract describes how patch targets address a document.
const PatchContract = `# Patch Targets

A patch edits one region of a Markdown document and leaves every other byte
untouched. Call get_document_map first to see which targets exist.

## Target types

| target_type | target | addresses |
|---|---|---|
| heading | ` + "`Project::Tasks`" + ` | the section under a heading, found by the texts of its ancestors |
| block | ` + "`task-1`" + ` or ` + "`^task-1`" + ` | the paragraph or list item ending with the marker ` + "`^task-1`" + ` |
| frontmatter | empty | the whole YAML block between the leading ` + "`---`" + ` lines |
| frontmatter | ` + "`tags`" + ` | one key of the YAML block |
| content | empty | the whole document |

Heading paths list every ancestor heading from the outermost level, separated
by ` + "`::`" + `. Leading ` + "`#`" + ` markers are ignored. A section runs until the next
heading of the same or a higher level; the first match wins.

## Operations

- **replace**: swap the region's content (a heading line itself is kept).
- **append**: add lines at the end of the region.
- **prepend**: add lines at the start of the region's body.
- **insert-after**: add lines right after the region, as a sibling.

Frontmatter is created when a document has none. For a single frontmatter key,
the content is parsed as a YAML value; append and prepend extend lists and
concatenate strings.

## Example

` + "```" + `markdown
# Project
## Tasks
- [ ] write docs ^task-1
## Notes
` + "```" + `

` + "`append`" + ` to heading ` + "`Project::Tasks`" + ` with content ` + "`- [ ] ship`" + ` adds the
line before ` + "`## Notes`" + `.
`
