package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdownFormatsText(t *testing.T) {
	out := string(Markdown("**bold** and _soft_"))
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.Contains(t, out, "<em>soft</em>")
}

func TestMarkdownStripsScripts(t *testing.T) {
	out := string(Markdown("hi <script>alert(1)</script>"))
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "alert(1)</script>")
}

func TestMarkdownLinksOpenSafely(t *testing.T) {
	out := string(Markdown("[site](https://example.com)"))
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, "noreferrer")
}

func TestMarkdownHardWraps(t *testing.T) {
	out := string(Markdown("line one\nline two"))
	assert.Contains(t, out, "<br")
}
