package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

// blockEndTags are elements whose close (or self-close, for br/hr)
// introduces a line break in the rendered text.
var blockEndTags = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "ul": true, "ol": true, "pre": true,
}

// RenderHTMLToText extracts the visible text of an HTML document as
// line-structured plain text. Block-level elements become line breaks
// so the downstream body cleanup can filter line by line; script and
// style contents are skipped entirely.
func RenderHTMLToText(htmlBody string) string {
	z := html.NewTokenizer(strings.NewReader(htmlBody))

	var b strings.Builder
	skip := 0
	atLineStart := true
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()

		case html.StartTagToken:
			name, _ := z.TagName()
			switch tag := string(name); tag {
			case "script", "style":
				skip++
			case "br", "hr":
				b.WriteByte('\n')
				atLineStart = true
			}

		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "br" || tag == "hr" {
				b.WriteByte('\n')
				atLineStart = true
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
				continue
			}
			if blockEndTags[tag] {
				b.WriteByte('\n')
				atLineStart = true
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 && !atLineStart {
				b.WriteByte(' ')
			}
			b.WriteString(text)
			atLineStart = false
		}
	}
}
