package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePlainTextPassesThrough(t *testing.T) {
	assert.Equal(t, "Projet actif: Finaliser GitHub release",
		Sanitize("  Projet actif: Finaliser GitHub release  "))
}

func TestSanitizeStripsTagsKeepsText(t *testing.T) {
	assert.Equal(t, "Important decision about the framework",
		Sanitize("<b>Important</b> decision about the <em>framework</em>"))
}

func TestSanitizeRemovesScriptContent(t *testing.T) {
	out := Sanitize("before <script>alert('x')</script> after")
	assert.Equal(t, "before after", out)
}

func TestSanitizeRemovesStyleAndIframe(t *testing.T) {
	assert.Equal(t, "visible",
		Sanitize("<style>p{color:red}</style>visible<iframe src=x>hidden</iframe>"))
}

func TestSanitizeUnescapesEntities(t *testing.T) {
	assert.Equal(t, "a < b & c", Sanitize("a &lt; b &amp; c"))
}
