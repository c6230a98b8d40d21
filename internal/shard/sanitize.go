package shard

import (
	"strings"

	"golang.org/x/net/html"
)

// Sanitize strips markup from free-text content before storage. Script
// and style elements are removed entirely, every other tag is dropped
// while its text is kept, and entities are unescaped. Content without
// any markup passes through untouched apart from whitespace trimming.
func Sanitize(content string) string {
	content = strings.TrimSpace(content)
	if !strings.ContainsAny(content, "<&") {
		return content
	}

	tokenizer := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isDangerousTag(string(name)) {
				skipDepth++
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isDangerousTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func isDangerousTag(name string) bool {
	switch name {
	case "script", "style", "iframe", "object", "embed":
		return true
	}
	return false
}
