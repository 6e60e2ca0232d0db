package views

import (
	"github.com/rivo/tview"

	"github.com/ternmail/tern/internal/mail"
	"github.com/ternmail/tern/internal/smtp"
)

// Composer is the message composition form. It reports every edit through
// OnChange so in-progress text can be backed up, and the finished message
// through OnSend.
type Composer struct {
	*tview.Form
	to      *tview.InputField
	cc      *tview.InputField
	subject *tview.InputField
	body    *tview.TextArea

	from      string
	sessionID string
	inReplyTo string
	draftUID  mail.UID

	onSend   func(o smtp.Outgoing)
	onSave   func(o smtp.Outgoing)
	onCancel func(sessionID string)
	onChange func(o smtp.Outgoing)
}

// NewComposer creates the compose form.
func NewComposer() *Composer {
	c := &Composer{
		Form:    tview.NewForm(),
		to:      tview.NewInputField().SetLabel("To"),
		cc:      tview.NewInputField().SetLabel("Cc"),
		subject: tview.NewInputField().SetLabel("Subject"),
		body:    tview.NewTextArea(),
	}
	c.SetBorder(true)
	c.SetTitle(" Compose ")

	c.AddFormItem(c.to)
	c.AddFormItem(c.cc)
	c.AddFormItem(c.subject)
	c.AddFormItem(c.body)
	c.AddButton("Send", func() {
		if c.onSend != nil {
			c.onSend(c.snapshot())
		}
	})
	c.AddButton("Save draft", func() {
		if c.onSave != nil {
			c.onSave(c.snapshot())
		}
	})
	c.AddButton("Cancel", func() {
		if c.onCancel != nil {
			c.onCancel(c.sessionID)
		}
	})

	notify := func(string) { c.changed() }
	c.to.SetChangedFunc(notify)
	c.cc.SetChangedFunc(notify)
	c.subject.SetChangedFunc(notify)
	c.body.SetChangedFunc(func() { c.changed() })
	return c
}

// SetOnSend sets the callback for the Send button.
func (c *Composer) SetOnSend(fn func(o smtp.Outgoing)) { c.onSend = fn }

// SetOnSave sets the callback for the Save draft button.
func (c *Composer) SetOnSave(fn func(o smtp.Outgoing)) { c.onSave = fn }

// SetOnCancel sets the callback for the Cancel button.
func (c *Composer) SetOnCancel(fn func(sessionID string)) { c.onCancel = fn }

// SetOnChange sets the callback fired on every edit.
func (c *Composer) SetOnChange(fn func(o smtp.Outgoing)) { c.onChange = fn }

// Open seeds the form for a new compose session. The seed carries reply
// header fields and, when editing a server-side draft, the draft's UID.
func (c *Composer) Open(sessionID, from string, seed smtp.Outgoing) {
	c.sessionID = sessionID
	c.from = from
	c.inReplyTo = seed.InReplyTo
	c.draftUID = seed.DraftUID
	c.to.SetText(seed.To)
	c.cc.SetText(seed.Cc)
	c.subject.SetText(seed.Subject)
	c.body.SetText(seed.Text, false)
	c.SetFocus(0)
}

func (c *Composer) changed() {
	if c.onChange != nil {
		c.onChange(c.snapshot())
	}
}

func (c *Composer) snapshot() smtp.Outgoing {
	return smtp.Outgoing{
		From:      c.from,
		To:        c.to.GetText(),
		Cc:        c.cc.GetText(),
		Subject:   c.subject.GetText(),
		Text:      c.body.GetText(),
		InReplyTo: c.inReplyTo,
		DraftUID:  c.draftUID,
		SessionID: c.sessionID,
	}
}
