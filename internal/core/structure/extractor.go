// Package structure recovers a hierarchical table of contents from flat
// heading-annotated text produced by the document converter.
package structure

import (
	"regexp"
	"strings"

	"github.com/unboundlabs/unbound/internal/models"
)

var headingRe = regexp.MustCompile(`^(#+)\s+(.*\S)\s*$`)

var slugRe = regexp.MustCompile(`\s+`)

// Extract parses text line by line and returns the top-level TOC nodes; the
// full tree is reachable via Children. A line is a heading when it starts with
// one or more '#' markers followed by whitespace and a title; the marker count
// is the level. A heading of level L attaches to the nearest still-open
// ancestor with level < L, so skipped levels (an H3 right after an H1) hang
// directly under the shallower ancestor. Non-heading lines are ignored.
//
// The result is a pure function of the input: no I/O, no shared state.
// Malformed or absent headings yield an empty slice, not an error.
func Extract(text string) []models.TOCNode {
	root := &node{level: 0}
	// stack of open ancestors; stack[0] is the synthetic root and never pops.
	stack := []*node{root}

	for _, line := range strings.Split(text, "\n") {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		title := strings.TrimSpace(m[2])

		n := &node{title: title, slug: Slugify(title), level: level}

		for stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		top := stack[len(stack)-1]
		top.children = append(top.children, n)
		stack = append(stack, n)
	}

	return root.freeze().Children
}

// Slugify lowercases the title and collapses whitespace runs into single
// hyphens. Duplicate slugs are not de-duplicated; that is a documented
// limitation of the scheme, not a defect.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	return slugRe.ReplaceAllString(s, "-")
}

// PageCount reports the number of page units in converted text: zero for
// empty text, otherwise form-feed page separators plus one. docconv keeps the
// \f separators pdftotext emits between PDF pages.
func PageCount(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return strings.Count(text, "\f") + 1
}

// node is the mutable form used while the ancestor stack is open; freeze
// converts the finished tree into immutable value nodes.
type node struct {
	title    string
	slug     string
	level    int
	children []*node
}

func (n *node) freeze() models.TOCNode {
	out := models.TOCNode{
		Title:    n.title,
		Slug:     n.slug,
		Level:    n.level,
		Children: []models.TOCNode{},
	}
	for _, c := range n.children {
		out.Children = append(out.Children, c.freeze())
	}
	return out
}
