package mcpserver

// NoteFormatContract describes how scanvault lays out the vault so LLM
// consumers can read it and hand-write compatible operations.
const NoteFormatContract = `# Scanvault Vault Layout

Scanned pages are recorded by the ` + "`" + `ingest_scan` + "`" + ` tool. Write notes by hand
with ` + "`" + `apply_operations` + "`" + ` only when a scan cannot express the change.

## Folders

| Folder          | Holds                                         |
|-----------------|-----------------------------------------------|
| 00_inbox        | Unsorted material                             |
| 01_daily        | One note per UTC capture date                 |
| 10_projects     | Entity notes created from scan links          |
| 20_areas        | Ongoing areas of responsibility               |
| 30_resources    | Reference material                            |
| 90_archive      | Retired notes                                 |

## Daily notes

` + "`" + `01_daily/YYYY-MM-DD.md` + "`" + ` starts with YAML frontmatter (title, date, tags) and
a ` + "`" + `# YYYY-MM-DD` + "`" + ` heading. Each scan appends one section:

` + "````" + `markdown
## Standup (09:26 UTC)
<!-- scan:SCAN_ID batch:BATCH_ID -->

> One-line summary

Structured Markdown body.

Links: [[10_projects/Atlas|Atlas]]
Tags: #meeting
Source: ` + "`" + `scans/page-1.jpg` + "`" + `

### Raw transcription

` + "```" + `text
verbatim transcript
` + "```" + `
` + "````" + `

Sections are never rewritten. Re-ingesting an identical scan is a no-op.

## Sidecars

` + "`" + `01_daily/YYYY-MM-DD.meta.json` + "`" + ` holds provenance for every scan in the note:
scan and batch IDs, capture time, image paths, processing mode, and the raw
transcript and structure JSON. Do not edit sidecars by hand.

## Entity notes

Each link name becomes ` + "`" + `10_projects/{slug}.md` + "`" + ` where the slug keeps case and
joins whitespace with ` + "`" + `-` + "`" + `. A stub is created the first time a name is seen and
is never overwritten afterwards, so edit entity notes freely.

## Operations

` + "`" + `apply_operations` + "`" + ` takes a JSON array of objects:

` + "```" + `json
[
  {"action": "create", "path": "00_inbox/idea.md", "content": "# Idea\n"},
  {"action": "delete", "path": "00_inbox/old.md"}
]
` + "```" + `

Actions are create, update and delete. Paths are vault-relative with forward
slashes. Any path that escapes the vault rejects the whole batch before
anything is written.
`
