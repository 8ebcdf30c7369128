// Package mailfile reads RFC 5322 messages from files.
package mailfile

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/mikey/inbox-assistant/internal/core"
	"golang.org/x/text/encoding/htmlindex"
)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// ParseMessage reads a raw message. When id is empty the Message-Id header is used.
func ParseMessage(r io.Reader, id string) (core.Email, error) {
	msg, err := mail.ReadMessage(bufio.NewReader(r))
	if err != nil {
		return core.Email{}, fmt.Errorf("failed to parse email message: %w", err)
	}

	if id == "" {
		id = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	}
	email := core.Email{
		ID:      id,
		From:    decodeHeader(msg.Header.Get("From")),
		Subject: decodeHeader(msg.Header.Get("Subject")),
	}
	if date, err := msg.Header.Date(); err == nil {
		email.Date = date
	}

	var c content
	if err := c.readPart(textproto.MIMEHeader(msg.Header), msg.Body); err != nil {
		return core.Email{}, err
	}
	email.Body = c.plain.String()
	if strings.TrimSpace(email.Body) == "" {
		email.Body = c.html.String()
	}
	email.Attachments = c.attachments

	return email, nil
}

type content struct {
	plain       strings.Builder
	html        strings.Builder
	attachments []core.Attachment
}

// readPart walks a MIME entity, descending into nested multiparts
func (c *content) readPart(header textproto.MIMEHeader, body io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if name := filename(header, params); name != "" {
		c.attachments = append(c.attachments, core.Attachment{Filename: name, MimeType: mediaType})
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil
		}
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// Keep what was read before a malformed part
				if c.plain.Len() > 0 || c.html.Len() > 0 {
					return nil
				}
				return fmt.Errorf("failed to read multipart body: %w", err)
			}
			if err := c.readPart(part.Header, part); err != nil {
				return err
			}
		}
	}

	var target *strings.Builder
	switch mediaType {
	case "text/plain":
		target = &c.plain
	case "text/html":
		target = &c.html
	default:
		return nil
	}

	decoded, err := io.ReadAll(decodeBody(header, params, body))
	if err != nil {
		return fmt.Errorf("failed to read %s part: %w", mediaType, err)
	}
	if target.Len() > 0 {
		target.WriteString("\n")
	}
	target.Write(decoded)
	return nil
}

func decodeBody(header textproto.MIMEHeader, params map[string]string, body io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		body = base64.NewDecoder(base64.StdEncoding, newlineStripper{body})
	case "quoted-printable":
		body = quotedprintable.NewReader(body)
	}
	if charset := params["charset"]; charset != "" {
		if r, err := charsetReader(charset, body); err == nil {
			return r
		}
	}
	return body
}

func filename(header textproto.MIMEHeader, params map[string]string) string {
	if _, dparams, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		if name := dparams["filename"]; name != "" {
			return decodeHeader(name)
		}
	}
	return decodeHeader(params["name"])
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "us-ascii":
		return input, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// newlineStripper drops CR and LF so wrapped base64 decodes cleanly
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	count, err := n.r.Read(p)
	out := p[:0]
	for _, b := range p[:count] {
		if b != '\r' && b != '\n' {
			out = append(out, b)
		}
	}
	return len(out), err
}
