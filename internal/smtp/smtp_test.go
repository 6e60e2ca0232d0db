package smtp

import (
	"bytes"
	"strings"
	"testing"

	gomail "github.com/emersion/go-message/mail"

	"github.com/ternmail/tern/internal/mail"
)

func TestBuildPlainText(t *testing.T) {
	msg, err := Build(Outgoing{
		From:    "Me <me@example.org>",
		To:      "you@example.org",
		Subject: "hello there",
		Text:    "just a line",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mr, err := gomail.CreateReader(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	subj, err := mr.Header.Subject()
	if err != nil || subj != "hello there" {
		t.Errorf("Subject = %q, %v", subj, err)
	}
	from, err := mr.Header.AddressList("From")
	if err != nil || len(from) != 1 || from[0].Address != "me@example.org" {
		t.Errorf("From = %v, %v", from, err)
	}
	if id, err := mr.Header.MessageID(); err != nil || id == "" {
		t.Errorf("MessageID = %q, %v", id, err)
	}

	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("NextPart: %v", err)
	}
	var body bytes.Buffer
	if _, err := body.ReadFrom(part.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.TrimSpace(body.String()) != "just a line" {
		t.Errorf("body = %q", body.String())
	}
}

func TestBuildReplyHeaders(t *testing.T) {
	msg, err := Build(Outgoing{
		From:      "me@example.org",
		To:        "you@example.org",
		Subject:   "Re: topic",
		Text:      "reply",
		InReplyTo: "abc123@example.org",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mr, err := gomail.CreateReader(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	if got := mr.Header.Get("In-Reply-To"); got != "<abc123@example.org>" {
		t.Errorf("In-Reply-To = %q", got)
	}
	if got := mr.Header.Get("References"); got != "<abc123@example.org>" {
		t.Errorf("References = %q", got)
	}
}

func TestBuildWithAttachment(t *testing.T) {
	msg, err := Build(Outgoing{
		From:    "me@example.org",
		To:      "you@example.org",
		Subject: "with file",
		Text:    "see attached",
		Attachments: []mail.AttachmentPart{
			{Filename: "notes.txt", MIMEType: "text/plain", Data: []byte("contents")},
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mr, err := gomail.CreateReader(bytes.NewReader(msg))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}
	var sawAttachment bool
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		ah, ok := part.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}
		name, err := ah.Filename()
		if err != nil || name != "notes.txt" {
			t.Errorf("attachment filename = %q, %v", name, err)
		}
		var data bytes.Buffer
		if _, err := data.ReadFrom(part.Body); err != nil {
			t.Fatalf("read attachment: %v", err)
		}
		if data.String() != "contents" {
			t.Errorf("attachment data = %q", data.String())
		}
		sawAttachment = true
	}
	if !sawAttachment {
		t.Error("no attachment part in built message")
	}
}

func TestBuildRejectsBadFrom(t *testing.T) {
	if _, err := Build(Outgoing{From: "not an address", To: "you@x", Text: "t"}); err == nil {
		t.Error("Build accepted an unparsable From")
	}
}

func TestRecipients(t *testing.T) {
	got, err := Recipients(Outgoing{
		To:  "Ann <ann@x.org>, bob@x.org",
		Cc:  "carol@x.org",
		Bcc: "dave@x.org",
	})
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	want := []string{"ann@x.org", "bob@x.org", "carol@x.org", "dave@x.org"}
	if len(got) != len(want) {
		t.Fatalf("Recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Recipients = %v, want %v", got, want)
		}
	}
}

func TestRecipientsNone(t *testing.T) {
	if _, err := Recipients(Outgoing{}); err == nil {
		t.Error("Recipients accepted a message with no recipients")
	}
}

func TestMessageIDUsesSenderDomain(t *testing.T) {
	id := messageID("Me <me@example.org>")
	if !strings.HasSuffix(id, "@example.org") {
		t.Errorf("messageID = %q, want @example.org suffix", id)
	}
	if id2 := messageID("me@example.org"); id2 == id {
		t.Error("two message ids collided")
	}
	if id := messageID("no-domain"); !strings.HasSuffix(id, "@localhost") {
		t.Errorf("messageID without domain = %q, want @localhost suffix", id)
	}
}

func TestAngled(t *testing.T) {
	if got := angled("abc@x"); got != "<abc@x>" {
		t.Errorf("angled = %q", got)
	}
	if got := angled("<abc@x>"); got != "<abc@x>" {
		t.Errorf("angled kept = %q", got)
	}
}
