package telegram

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/inbucket/html2text"
	"github.com/sandevgo/localrag/pkg/conv"
	"github.com/sandevgo/localrag/pkg/log"
	tele "gopkg.in/telebot.v3"
)

// Below Telegram's 4096 limit, leaving room for the closing tags added at
// each cut.
const maxTelegramMsgLen = 4000

type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type sender struct {
	bot messenger
}

func newSender(bot messenger) *sender {
	return &sender{bot: bot}
}

// sendMarkdown converts Markdown to Telegram HTML and sends it in as many
// messages as needed. A chunk Telegram cannot parse is resent as plain text.
func (s *sender) sendMarkdown(ctx context.Context, to tele.Recipient, md string, silent bool) error {
	logger := log.FromCtx(ctx)
	html := strings.TrimSpace(conv.MarkdownToTelegramHTML([]byte(md)))
	if html == "" {
		return nil
	}

	for i, chunk := range splitHTML(html, maxTelegramMsgLen) {
		opts := []interface{}{tele.ModeHTML}
		if silent && i == 0 {
			opts = append(opts, tele.Silent)
		}

		_, err := s.bot.Send(to, chunk, opts...)
		if err != nil && isParseError(err) {
			logger.Warn().Err(err).Int("chunk", i).Msg("telegram rejected html, sending plain text")
			_, err = s.bot.Send(to, plainText(chunk), opts[1:]...)
		}
		if err != nil {
			logger.Error().Err(err).Int("chunk", i).Int("len", len(chunk)).Msg("failed to send telegram chunk")
			return err
		}
	}
	return nil
}

func isParseError(err error) bool {
	return strings.Contains(err.Error(), "can't parse entities")
}

func plainText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{})
	if err != nil {
		return html
	}
	return text
}

var tagRe = regexp.MustCompile(`<(/?)([a-zA-Z]+)[^>]*>`)

type openTag struct {
	name string
	raw  string
}

// openTags returns the tags still open at the end of html, outermost first.
func openTags(html string) []openTag {
	var stack []openTag
	for _, m := range tagRe.FindAllStringSubmatch(html, -1) {
		name := strings.ToLower(m[2])
		if m[1] == "" {
			stack = append(stack, openTag{name: name, raw: m[0]})
			continue
		}
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].name == name {
				stack = append(stack[:i], stack[i+1:]...)
				break
			}
		}
	}
	return stack
}

// splitHTML cuts html into chunks of at most maxLen bytes plus closing tags.
// Cuts prefer newlines, never land inside a tag, an entity or a rune, and
// tags open at a cut are closed there and reopened in the next chunk.
func splitHTML(html string, maxLen int) []string {
	var chunks []string
	prefix := ""

	for {
		text := prefix + html
		if len(text) <= maxLen {
			if strings.TrimSpace(tagRe.ReplaceAllString(text, "")) != "" {
				chunks = append(chunks, text)
			}
			return chunks
		}

		cut := breakPoint(text, maxLen, len(prefix))
		head := text[:cut]
		open := openTags(head)

		var sb strings.Builder
		sb.WriteString(head)
		for i := len(open) - 1; i >= 0; i-- {
			sb.WriteString("</" + open[i].name + ">")
		}
		chunks = append(chunks, sb.String())

		sb.Reset()
		for _, t := range open {
			sb.WriteString(t.raw)
		}
		prefix = sb.String()
		html = strings.TrimLeft(text[cut:], "\n")
	}
}

// breakPoint picks a cut in text[:maxLen] past min, so every chunk makes
// progress beyond the reopened tags.
func breakPoint(text string, maxLen, min int) int {
	cut := maxLen
	if idx := strings.LastIndex(text[:cut], "\n"); idx > maxLen/3 && idx > min {
		cut = idx
	}
	if lt := strings.LastIndex(text[:cut], "<"); lt > strings.LastIndex(text[:cut], ">") && lt > min {
		cut = lt
	}
	if amp := strings.LastIndex(text[:cut], "&"); amp > strings.LastIndex(text[:cut], ";") && amp > min {
		cut = amp
	}
	// Opening tags right before the cut move to the next chunk.
	for text[cut-1] == '>' {
		lt := strings.LastIndex(text[:cut], "<")
		if lt <= min || text[lt+1] == '/' {
			break
		}
		cut = lt
	}
	for cut > min+1 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
