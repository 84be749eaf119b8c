// Package delivery turns an aggregated result set into the message the user
// receives and tells the caller whether the attempt counts against quota.
package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"

	"nexus-bot/internal/nexus"

	"go.uber.org/zap"
)

const (
	// PreviewLines is how many lines the inline fallback shows.
	PreviewLines = 15
	// previewRunes keeps the fallback inside Telegram's 4096 character limit.
	previewRunes = 3500
)

type Uploader interface {
	Create(ctx context.Context, content string) (string, error)
}

type Kind int

const (
	KindEmpty Kind = iota
	KindFailed
	KindPasted
	KindInline
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindFailed:
		return "failed"
	case KindPasted:
		return "pasted"
	case KindInline:
		return "inline"
	}
	return "unknown"
}

type Outcome struct {
	Kind Kind
	// Text is the HTML message body for the user.
	Text string
	Link string
	// Commit is false only when nothing but failures came back; the caller
	// refunds the reserved search in that case.
	Commit  bool
	Results int
}

type Strategist struct {
	uploader Uploader
	logger   *zap.Logger
}

func NewStrategist(uploader Uploader, logger *zap.Logger) *Strategist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Strategist{uploader: uploader, logger: logger}
}

// Deliver classifies rs and, for real data, uploads it. beforeUpload, when
// set, runs just before the upload starts so the caller can show progress.
func (s *Strategist) Deliver(ctx context.Context, rs nexus.ResultSet, beforeUpload func()) Outcome {
	switch {
	case rs.Empty():
		return Outcome{
			Kind:   KindEmpty,
			Text:   "❌ No results found globally for your query.",
			Commit: true,
		}
	case rs.AllFailed():
		return Outcome{
			Kind: KindFailed,
			Text: "⚠️ " + html.EscapeString(rs.Entries[0].Text),
		}
	}

	if beforeUpload != nil {
		beforeUpload()
	}

	lines := rs.Lines()
	out := Outcome{Commit: true, Results: len(lines)}

	link, err := s.uploader.Create(ctx, strings.Join(lines, "\n"))
	if err != nil {
		s.logger.Warn("Paste upload failed, sending inline preview", zap.Error(err), zap.Int("lines", len(lines)))
		out.Kind = KindInline
		out.Text = fmt.Sprintf("✅ <b>Found %d result(s)</b>\n<i>(Pastebin upload failed)</i>\n\n<code>%s</code>",
			len(lines), html.EscapeString(Preview(lines)))
		return out
	}

	out.Kind = KindPasted
	out.Link = link
	out.Text = fmt.Sprintf("✅ <b>Found %d result(s)</b>\n\n"+
		"🔗 <a href=\"%s\">View Full Results Securely</a>\n\n"+
		"⚠️ <b>Note:</b> This link will permanently self-destruct after it is opened once.",
		len(lines), html.EscapeString(link))
	return out
}

// Preview returns the first PreviewLines lines and a count of the rest.
func Preview(lines []string) string {
	shown := lines
	if len(shown) > PreviewLines {
		shown = shown[:PreviewLines]
	}

	text := strings.Join(shown, "\n")
	if r := []rune(text); len(r) > previewRunes {
		text = string(r[:previewRunes]) + "…"
	}
	if rest := len(lines) - len(shown); rest > 0 {
		text += fmt.Sprintf("\n\n... and %d more lines.", rest)
	}
	return text
}
