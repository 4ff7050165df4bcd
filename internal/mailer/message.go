package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Inline is a part referenced from the HTML body through cid:ContentID.
type Inline struct {
	ContentID   string
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Inline  []Inline
}

// Bytes renders msg as a multipart/related MIME document with CRLF line
// endings, ready for the SMTP DATA command.
func (m Message) Bytes() ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	htmlHeader := textproto.MIMEHeader{}
	htmlHeader.Set("Content-Type", `text/html; charset="UTF-8"`)
	htmlHeader.Set("Content-Transfer-Encoding", "base64")
	part, err := mw.CreatePart(htmlHeader)
	if err != nil {
		return nil, err
	}
	if err := writeBase64(part, []byte(m.HTML)); err != nil {
		return nil, err
	}

	for _, in := range m.Inline {
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", in.ContentType)
		h.Set("Content-Transfer-Encoding", "base64")
		h.Set("Content-ID", "<"+in.ContentID+">")
		h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": in.Filename}))
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if err := writeBase64(part, in.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", m.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/related; boundary=%q\r\n", mw.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// writeBase64 writes data base64-encoded in 76 character lines.
func writeBase64(w io.Writer, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	var b strings.Builder
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
