package mail

import (
	"fmt"
	"io"
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

// AttachmentPart describes one attachment of a parsed message.
type AttachmentPart struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Body is the parsed full message for a (folder, UID). Large; fetched at
// most once per UID unless the folder is invalidated.
type Body struct {
	Text        string
	HTML        string
	Attachments []AttachmentPart
	Size        int
}

// ParseBody parses a raw RFC822 message into text/html parts and an
// attachment table.
func ParseBody(raw []byte) (*Body, error) {
	r, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	body := &Body{Size: len(raw)}
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read part: %w", err)
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read inline part: %w", err)
			}
			switch mediaType {
			case "text/html":
				body.HTML += string(data)
			default:
				body.Text += string(data)
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			mediaType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return nil, fmt.Errorf("read attachment: %w", err)
			}
			body.Attachments = append(body.Attachments, AttachmentPart{
				Filename: filename,
				MIMEType: mediaType,
				Data:     data,
			})
		}
	}

	return body, nil
}
