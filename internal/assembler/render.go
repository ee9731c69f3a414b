package assembler

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/weave/pkg/models"
)

// Format selects the rendered context shape, chosen per target backend.
type Format string

const (
	// FormatTagged renders <tag source="stepId">...</tag> sections.
	FormatTagged Format = "tagged"
	// FormatMarkdown renders "## Tag" headed prose sections.
	FormatMarkdown Format = "markdown"
)

// Valid returns true if the format is a known value.
func (f Format) Valid() bool {
	return f == FormatTagged || f == FormatMarkdown
}

// render joins the surviving blocks into one string in the given shape.
func render(blocks []ContextBlock, format Format) string {
	if len(blocks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if format == FormatMarkdown {
			parts = append(parts, renderMarkdown(block))
		} else {
			parts = append(parts, renderTagged(block))
		}
	}
	return strings.Join(parts, "\n\n")
}

// renderTagged emits a structured section, e.g.
// <analysis source="analyze">...</analysis>.
func renderTagged(block ContextBlock) string {
	tag := tagName(block)
	if block.StepID != "" {
		return fmt.Sprintf("<%s source=%q>\n%s\n</%s>", tag, block.StepID, block.Text, tag)
	}
	return fmt.Sprintf("<%s>\n%s\n</%s>", tag, block.Text, tag)
}

// renderMarkdown emits a headered prose section.
func renderMarkdown(block ContextBlock) string {
	return fmt.Sprintf("## %s\n\n%s", headingTitle(block), block.Text)
}

// tagName returns the XML-ish tag for a block: the rule's section tag when
// present, otherwise a default per source kind.
func tagName(block ContextBlock) string {
	if block.Section != "" {
		return sanitizeTag(block.Section)
	}
	switch block.Source {
	case models.SourceTask:
		return "task"
	case models.SourceStep:
		return "step-output"
	case models.SourceSteps:
		return "prior-steps"
	case models.SourceFile:
		return "file-context"
	default:
		return "context"
	}
}

// headingTitle returns the markdown heading for a block.
func headingTitle(block ContextBlock) string {
	if block.Section != "" {
		return titleCase(block.Section)
	}
	switch block.Source {
	case models.SourceTask:
		return "Task"
	case models.SourceStep:
		if block.StepID != "" {
			return "Output of " + block.StepID
		}
		return "Step Output"
	case models.SourceSteps:
		return "Prior Steps"
	case models.SourceFile:
		return "File Context"
	default:
		return "Context"
	}
}

// sectionLabel names a block for drop bookkeeping.
func sectionLabel(block ContextBlock) string {
	if block.Section != "" {
		return block.Section
	}
	if block.StepID != "" {
		return string(block.Source) + ":" + block.StepID
	}
	return string(block.Source)
}

// sanitizeTag lowercases a section tag and replaces whitespace so the
// result is a valid element name.
func sanitizeTag(section string) string {
	tag := strings.ToLower(strings.TrimSpace(section))
	tag = strings.ReplaceAll(tag, " ", "-")
	return tag
}

// titleCase capitalizes each space- or dash-separated word.
func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == '-' || r == '_' })
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
