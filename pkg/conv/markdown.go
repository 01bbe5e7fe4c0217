// Package conv renders the Markdown produced by commands and the model for
// each front end.
package conv

import (
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/inbucket/html2text"
	"github.com/microcosm-cc/bluemonday"
)

const extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock

// Telegram accepts only a small HTML subset:
// https://core.telegram.org/bots/api#html-style
var tgPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").OnElements("code")
	return p
}()

func render(md []byte, flags html.Flags) []byte {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: flags})
	return markdown.Render(p.Parse(md), renderer)
}

// MarkdownToTelegramHTML renders md and strips every tag Telegram rejects.
func MarkdownToTelegramHTML(md []byte) string {
	unsafeHTML := render(md, html.CommonFlags|html.HrefTargetBlank)
	return string(tgPolicy.SanitizeBytes(unsafeHTML))
}

// MarkdownToText renders Markdown for a plain terminal: formatting is dropped,
// links keep their target and lists keep their bullets.
func MarkdownToText(md []byte) string {
	text, err := html2text.FromString(string(render(md, html.CommonFlags)), html2text.Options{PrettyTables: true})
	if err != nil {
		return string(md)
	}
	return strings.TrimSpace(text)
}
