package main

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Entry is a single version section of the changelog.
type Entry struct {
	Version string
	Date    string
	Yanked  bool

	// Sections buckets the entry's bullet points by change type
	// (Added, Fixed, ...).
	Sections map[string][]string

	// Content is the raw markdown between this heading and the next.
	Content string
}

// Changes counts the bullet points across all of the entry's sections.
func (e *Entry) Changes() int {
	n := 0
	for _, items := range e.Sections {
		n += len(items)
	}
	return n
}

// Changelog is a parsed Keep a Changelog document.
type Changelog struct {
	Entries []Entry
	Links   map[string]string
}

// FindVersion finds an entry by version, tolerating a leading "v".
func (c *Changelog) FindVersion(version string) *Entry {
	version = strings.TrimPrefix(version, "v")
	for i := range c.Entries {
		if strings.TrimPrefix(c.Entries[i].Version, "v") == version {
			return &c.Entries[i]
		}
	}
	return nil
}

// Parse parses a Keep a Changelog formatted markdown document.
func Parse(source []byte) (*Changelog, error) {
	md := goldmark.New()
	ctx := parser.NewContext()
	doc := md.Parser().Parse(text.NewReader(source), parser.WithContext(ctx))

	changelog := &Changelog{Links: make(map[string]string)}
	for _, ref := range ctx.References() {
		changelog.Links[string(ref.Label())] = string(ref.Destination())
	}

	// Walk top-level blocks in order. A level-2 heading opens a version
	// entry, a level-3 heading opens a change-type section inside it, and
	// lists contribute their items to the open section.
	var spans []headingSpan
	section := ""
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			if n.Level == 2 {
				version, date, yanked := parseVersionHeading(nodeText(n, source))
				changelog.Entries = append(changelog.Entries, Entry{
					Version:  version,
					Date:     date,
					Yanked:   yanked,
					Sections: make(map[string][]string),
				})
				spans = append(spans, spanOf(n, source))
				section = ""
				continue
			}
			if n.Level == 3 && len(changelog.Entries) > 0 {
				section = nodeText(n, source)
			}
		case *ast.List:
			if len(changelog.Entries) == 0 || section == "" {
				continue
			}
			entry := &changelog.Entries[len(changelog.Entries)-1]
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				entry.Sections[section] = append(entry.Sections[section], nodeText(item, source))
			}
		}
	}

	for i := range changelog.Entries {
		end := len(source)
		if i+1 < len(spans) {
			end = spans[i+1].lineStart
		}
		if spans[i].textStop < end {
			changelog.Entries[i].Content = strings.TrimSpace(string(source[spans[i].textStop:end]))
		}
	}

	return changelog, nil
}

// headingSpan records where a version heading sits in the source.
type headingSpan struct {
	lineStart int // start of the "## " line
	textStop  int // end of the heading text
}

func spanOf(h *ast.Heading, source []byte) headingSpan {
	s := headingSpan{}
	if lines := h.Lines(); lines.Len() > 0 {
		// Heading segments start at the text, after the "## " marker.
		// Back up to the line start so the previous entry's body does not
		// swallow the marker.
		textStart := lines.At(0).Start
		s.textStop = lines.At(lines.Len() - 1).Stop
		s.lineStart = bytes.LastIndexByte(source[:textStart], '\n') + 1
	}
	return s
}

// nodeText flattens every text segment under n. Heading text like
// "[1.0.0] - 2024-01-15" loses its brackets when the label resolves to a
// link definition, so callers must accept both forms.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func parseVersionHeading(heading string) (version, date string, yanked bool) {
	heading = strings.TrimSpace(heading)
	if strings.HasSuffix(heading, "[YANKED]") {
		yanked = true
		heading = strings.TrimSpace(strings.TrimSuffix(heading, "[YANKED]"))
	}

	if rest, ok := strings.CutPrefix(heading, "["); ok {
		if idx := strings.Index(rest, "]"); idx != -1 {
			version = rest[:idx]
			if after, ok := strings.CutPrefix(strings.TrimSpace(rest[idx+1:]), "- "); ok {
				date = strings.TrimSpace(after)
			}
			return version, date, yanked
		}
	}
	if before, after, ok := strings.Cut(heading, " - "); ok {
		return strings.TrimSpace(before), strings.TrimSpace(after), yanked
	}
	return heading, "", yanked
}
