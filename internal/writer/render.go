package writer

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/parser"
	"github.com/starford/scanvault/internal/vaultpath"
)

// RawTranscriptionHeading opens the verbatim transcript block of a section.
const RawTranscriptionHeading = "### Raw transcription"

type dailyFrontmatter struct {
	Title string   `yaml:"title"`
	Date  string   `yaml:"date"`
	Tags  []string `yaml:"tags"`
}

type entityFrontmatter struct {
	Title   string   `yaml:"title"`
	Tags    []string `yaml:"tags"`
	Created string   `yaml:"created"`
}

// renderDailyHeader returns the standard header of a new daily note.
func renderDailyHeader(date string) (string, error) {
	data, err := parser.Render(dailyFrontmatter{
		Title: date,
		Date:  date,
		Tags:  []string{"daily"},
	}, "# "+date+"\n")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// renderEntityStub returns the minimal note created on first reference to
// an entity.
func renderEntityStub(name, notePath string, capturedAt time.Time) (string, error) {
	body := fmt.Sprintf("# %s\n\nFirst referenced in [[%s]].\n", name, vaultpath.WikiTarget(notePath))
	data, err := parser.Render(entityFrontmatter{
		Title:   name,
		Tags:    []string{"entity"},
		Created: vaultpath.DateStamp(capturedAt),
	}, body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// renderSection returns the daily note section for one scan. The output
// depends only on in and links, so re-rendering the same input is stable.
func renderSection(in models.WriterInput, links []entityLink) string {
	var b strings.Builder
	meta := in.Structure.Meta

	title := singleLine(meta.Title)
	if title == "" {
		title = "Scan"
	}
	fmt.Fprintf(&b, "## %s (%s UTC)\n", title, in.CapturedAt.UTC().Format("15:04"))
	b.WriteString(parser.ScanMarker(in.ScanID, in.BatchID))
	b.WriteString("\n\n")

	if s := strings.TrimSpace(meta.Summary); s != "" {
		fmt.Fprintf(&b, "> %s\n\n", s)
	}

	b.WriteString(strings.TrimSpace(in.Structure.Markdown))
	b.WriteString("\n\n")

	if len(links) > 0 {
		refs := make([]string, len(links))
		for i, l := range links {
			refs[i] = fmt.Sprintf("[[%s|%s]]", vaultpath.WikiTarget(l.path), aliasReplacer.Replace(l.name))
		}
		fmt.Fprintf(&b, "Links: %s\n", strings.Join(refs, ", "))
	}
	if tags := renderTags(meta.Tags); tags != "" {
		fmt.Fprintf(&b, "Tags: %s\n", tags)
	}
	if c := in.Structure.Classification; c.Folder != "" && c.Folder != vaultpath.FolderDaily {
		if c.Reason != "" {
			fmt.Fprintf(&b, "Classification: %s (%s)\n", c.Folder, c.Reason)
		} else {
			fmt.Fprintf(&b, "Classification: %s\n", c.Folder)
		}
	}
	if in.ImagePath != "" {
		fmt.Fprintf(&b, "Source: `%s`\n", in.ImagePath)
	}
	b.WriteString("\n")

	if warnings := collectWarnings(in); len(warnings) > 0 {
		b.WriteString("> [!warning] Review\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "> - %s\n", w)
		}
		b.WriteString("\n")
	}

	transcript := in.Transcript.Transcript
	fence := parser.Fence(transcript)
	b.WriteString(RawTranscriptionHeading)
	b.WriteString("\n\n")
	b.WriteString(fence)
	b.WriteString("text\n")
	b.WriteString(transcript)
	if !strings.HasSuffix(transcript, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n")
	return b.String()
}

// singleLine collapses every run of whitespace, newlines included, into
// one space.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// aliasReplacer drops the characters that end a [[target|alias]] link.
var aliasReplacer = strings.NewReplacer("[", "", "]", "", "|", "/")

func renderTags(tags []string) string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.Join(strings.Fields(strings.TrimPrefix(strings.TrimSpace(t), "#")), "-")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, "#"+t)
	}
	return strings.Join(out, " ")
}

// collectWarnings merges payload warnings with the low-confidence and
// uncertain-segment notices for the input's processing mode.
func collectWarnings(in models.WriterInput) []string {
	var out []string
	if c := in.Transcript.Confidence; c != nil {
		if floor := in.Mode.ConfidenceFloor(); *c < floor {
			mode := in.Mode
			if mode == "" {
				mode = models.ModeBalanced
			}
			out = append(out, fmt.Sprintf("low transcription confidence %.2f (below %.2f for %s mode)", *c, floor, mode))
		}
	}
	for _, s := range in.Transcript.Uncertain {
		if s.Reason != "" {
			out = append(out, fmt.Sprintf("uncertain: %q (%s)", s.Text, s.Reason))
		} else {
			out = append(out, fmt.Sprintf("uncertain: %q", s.Text))
		}
	}
	out = appendNonEmpty(out, in.Transcript.Warnings)
	out = appendNonEmpty(out, in.Structure.Warnings)
	return out
}

func appendNonEmpty(dst, src []string) []string {
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}
