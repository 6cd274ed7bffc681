package structure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNested(t *testing.T) {
	text := "# Intro\nHello\n## Details\nWorld"

	nodes := Extract(text)

	require.Len(t, nodes, 1)
	assert.Equal(t, "Intro", nodes[0].Title)
	assert.Equal(t, "intro", nodes[0].Slug)
	assert.Equal(t, 1, nodes[0].Level)

	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, "Details", nodes[0].Children[0].Title)
	assert.Equal(t, "details", nodes[0].Children[0].Slug)
	assert.Equal(t, 2, nodes[0].Children[0].Level)
	assert.Empty(t, nodes[0].Children[0].Children)
}

func TestExtractSkippedLevelAttachesToNearestAncestor(t *testing.T) {
	// H3 directly after an H1 attaches under the H1; the following H2 becomes
	// a sibling of the H3, both direct children of A.
	text := "# A\n### B\n## C"

	nodes := Extract(text)

	require.Len(t, nodes, 1)
	a := nodes[0]
	require.Len(t, a.Children, 2)
	assert.Equal(t, "B", a.Children[0].Title)
	assert.Equal(t, 3, a.Children[0].Level)
	assert.Equal(t, "C", a.Children[1].Title)
	assert.Equal(t, 2, a.Children[1].Level)
	assert.Empty(t, a.Children[0].Children)
}

func TestExtractSiblingsAndDeepNesting(t *testing.T) {
	text := "# One\n## One A\n### One A i\n## One B\n# Two"

	nodes := Extract(text)

	require.Len(t, nodes, 2)
	one := nodes[0]
	require.Len(t, one.Children, 2)
	assert.Equal(t, "One A", one.Children[0].Title)
	require.Len(t, one.Children[0].Children, 1)
	assert.Equal(t, "One A i", one.Children[0].Children[0].Title)
	assert.Equal(t, "One B", one.Children[1].Title)
	assert.Empty(t, nodes[1].Children)
}

func TestExtractNoHeadings(t *testing.T) {
	assert.Empty(t, Extract("just some text\nwith no structure"))
	assert.Empty(t, Extract(""))
	// markers without a title are not headings
	assert.Empty(t, Extract("#\n##\n#    "))
	// marker must be followed by whitespace
	assert.Empty(t, Extract("#NoSpace"))
}

func TestExtractDeterministic(t *testing.T) {
	text := "# A\n## B\n# C"
	assert.Equal(t, Extract(text), Extract(text))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "intro-to-variables", Slugify("Intro to Variables"))
	assert.Equal(t, "a-b", Slugify("  A \t B  "))
	// duplicate titles yield duplicate slugs, by design of the scheme
	assert.Equal(t, Slugify("Summary"), Slugify("Summary"))
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 0, PageCount(""))
	assert.Equal(t, 0, PageCount("  \n "))
	assert.Equal(t, 1, PageCount("single page"))
	assert.Equal(t, 3, PageCount("one\ftwo\fthree"))
}
