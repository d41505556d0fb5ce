package mcpserver

// AnnotationFormat describes the annotation file and the vocabulary used in
// every coverage answer.
const AnnotationFormat = `# Annotation File Format

The annotation file (annotations.txt in the workdir) holds one archive
directory per line:

` + "```" + `
<path> <collection> <annotation>
` + "```" + `

- **path** is absolute, slash separated, without a trailing slash.
- **collection** is the first two path components (e.g. /badc/cmip5). It is
  informational and recomputed on load.
- **annotation** is everything after the second space.

Lines are in the order directories were classified. No entry is an ancestor
of another entry.

## Annotations

| Annotation       | Meaning                                                   |
|------------------|-----------------------------------------------------------|
| published etc.   | Catalogue publication state of the directory.             |
| ignore           | Listed in the operator ignore list.                       |
| ignore_pattern   | Matched one of the operator ignore patterns.              |
| readme_only      | Too small to hold data (few files, few bytes).            |
| missing          | Holds data that no catalogue record accounts for.         |
| missing_<name>   | A missing directory retagged with its collection name.    |

## Residual

Bytes and files under the archive root that no annotated directory covers
are reported as the ("missing", "TOP") row. The residual is never ok.
`
