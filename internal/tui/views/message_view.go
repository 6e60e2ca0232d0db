package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/ternmail/tern/internal/mail"
)

// MessageView renders a single opened message.
type MessageView struct {
	*tview.TextView
}

// NewMessageView creates the message pane.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Message ")
	return &MessageView{TextView: tv}
}

// Update renders header and body. A nil body shows a loading note.
func (mv *MessageView) Update(hdr *mail.Header, body *mail.Body) {
	mv.Clear()
	var b strings.Builder

	if hdr != nil {
		fmt.Fprintf(&b, "[yellow]From:[-]    %s\n", hdr.From)
		fmt.Fprintf(&b, "[yellow]To:[-]      %s\n", hdr.To)
		if hdr.Cc != "" {
			fmt.Fprintf(&b, "[yellow]Cc:[-]      %s\n", hdr.Cc)
		}
		fmt.Fprintf(&b, "[yellow]Date:[-]    %s\n", hdr.DateTime())
		fmt.Fprintf(&b, "[yellow]Subject:[-] %s\n", hdr.Subject)
		b.WriteString("\n")
	}

	switch {
	case body == nil:
		b.WriteString("[gray]Loading...[-]\n")
	case body.Text != "":
		b.WriteString(tview.Escape(body.Text))
	case body.HTML != "":
		b.WriteString("[gray](HTML message, no plain text part)[-]\n")
	default:
		b.WriteString("[gray](empty message)[-]\n")
	}

	if body != nil && len(body.Attachments) > 0 {
		b.WriteString("\n[yellow]Attachments:[-]\n")
		for _, att := range body.Attachments {
			fmt.Fprintf(&b, "  %s (%s, %d bytes)\n", att.Filename, att.MIMEType, len(att.Data))
		}
	}

	mv.SetText(b.String())
	mv.ScrollToBeginning()
}
