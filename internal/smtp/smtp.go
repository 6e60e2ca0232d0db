// Package smtp builds RFC 5322 messages and submits them over SMTP with
// STARTTLS and PLAIN auth.
package smtp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ternmail/tern/internal/mail"
)

// Outgoing is one message to be sent. It is also the unit persisted to the
// outbox queue, so every field must survive a JSON round trip.
type Outgoing struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`

	Attachments []mail.AttachmentPart `json:"attachments,omitempty"`

	// InReplyTo holds the Message-ID of the message being answered.
	InReplyTo string `json:"in_reply_to,omitempty"`

	// DraftUID is the server-side draft this message replaces, 0 if none.
	DraftUID mail.UID `json:"draft_uid,omitempty"`

	// SessionID identifies the compose session for backup deduplication.
	SessionID string `json:"session_id,omitempty"`
}

// Config holds the submission settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Sender submits built messages to the configured relay.
type Sender struct {
	cfg Config
	log *zap.Logger
}

func NewSender(cfg Config, log *zap.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

// Build renders the outgoing message as a full RFC 5322 body, ready for
// SMTP DATA or an IMAP append.
func Build(o Outgoing) ([]byte, error) {
	var h gomail.Header
	h.SetDate(time.Now())
	h.SetSubject(o.Subject)
	h.SetMessageID(messageID(o.From))

	from, err := netmail.ParseAddress(o.From)
	if err != nil {
		return nil, fmt.Errorf("parse from %q: %w", o.From, err)
	}
	h.SetAddressList("From", []*gomail.Address{from})

	for _, fld := range []struct{ key, val string }{
		{"To", o.To}, {"Cc", o.Cc},
	} {
		if fld.val == "" {
			continue
		}
		addrs, err := netmail.ParseAddressList(fld.val)
		if err != nil {
			return nil, fmt.Errorf("parse %s %q: %w", strings.ToLower(fld.key), fld.val, err)
		}
		h.SetAddressList(fld.key, addrs)
	}

	if o.InReplyTo != "" {
		ref := angled(o.InReplyTo)
		h.Set("In-Reply-To", ref)
		h.Set("References", ref)
	}

	var buf bytes.Buffer
	w, err := gomail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	if err := writeInline(w, o); err != nil {
		return nil, err
	}
	for _, att := range o.Attachments {
		if err := writeAttachment(w, att); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(w *gomail.Writer, o Outgoing) error {
	if o.HTML == "" {
		var th gomail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		pw, err := w.CreateSingleInline(th)
		if err != nil {
			return fmt.Errorf("create text part: %w", err)
		}
		if _, err := pw.Write([]byte(o.Text)); err != nil {
			return fmt.Errorf("write text part: %w", err)
		}
		return pw.Close()
	}

	iw, err := w.CreateInline()
	if err != nil {
		return fmt.Errorf("create inline: %w", err)
	}
	for _, part := range []struct{ ctype, body string }{
		{"text/plain", o.Text}, {"text/html", o.HTML},
	} {
		var th gomail.InlineHeader
		th.SetContentType(part.ctype, map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(th)
		if err != nil {
			return fmt.Errorf("create %s part: %w", part.ctype, err)
		}
		if _, err := pw.Write([]byte(part.body)); err != nil {
			return fmt.Errorf("write %s part: %w", part.ctype, err)
		}
		if err := pw.Close(); err != nil {
			return err
		}
	}
	return iw.Close()
}

func writeAttachment(w *gomail.Writer, att mail.AttachmentPart) error {
	var ah gomail.AttachmentHeader
	ah.SetFilename(att.Filename)
	if att.MIMEType != "" {
		ah.Set("Content-Type", att.MIMEType)
	}
	aw, err := w.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("create attachment %q: %w", att.Filename, err)
	}
	if _, err := aw.Write(att.Data); err != nil {
		return fmt.Errorf("write attachment %q: %w", att.Filename, err)
	}
	return aw.Close()
}

// Recipients returns all envelope recipients, including Bcc.
func Recipients(o Outgoing) ([]string, error) {
	var out []string
	for _, fld := range []string{o.To, o.Cc, o.Bcc} {
		if fld == "" {
			continue
		}
		addrs, err := netmail.ParseAddressList(fld)
		if err != nil {
			return nil, fmt.Errorf("parse recipients %q: %w", fld, err)
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no recipients")
	}
	return out, nil
}

// Send builds the message and submits it over STARTTLS.
func (s *Sender) Send(o Outgoing) error {
	msg, err := Build(o)
	if err != nil {
		return err
	}
	rcpts, err := Recipients(o)
	if err != nil {
		return err
	}
	from, err := netmail.ParseAddress(o.From)
	if err != nil {
		return fmt.Errorf("parse from %q: %w", o.From, err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}

	s.log.Info("message sent",
		zap.String("to", o.To),
		zap.String("subject", o.Subject))
	return client.Quit()
}

func messageID(from string) string {
	host := "localhost"
	if at := strings.LastIndexByte(from, '@'); at >= 0 {
		host = strings.Trim(from[at+1:], "> ")
	}
	return fmt.Sprintf("%s@%s", uuid.NewString(), host)
}

func angled(id string) string {
	if strings.HasPrefix(id, "<") {
		return id
	}
	return "<" + id + ">"
}
