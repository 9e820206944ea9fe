// Package mailparse reads submission emails from .eml files and mbox
// archives. It extracts the fields the matching engine needs (sender,
// subject, text body, attachments) and keeps per-message failures isolated
// so one broken message never aborts a batch.
package mailparse

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"
	"time"
)

// ParseError describes one message that could not be parsed. Source names
// the message or file it came from.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string { return "parse " + e.Source + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// Attachment is one file carried by a message, already transfer-decoded.
type Attachment struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Message is the parsed view of one submission email.
type Message struct {
	MessageID   string
	Subject     string
	SenderName  string
	SenderAddr  string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

var (
	addrRe             = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	errMissingBoundary = errors.New("multipart boundary missing")
)

var wordDecoder = &mime.WordDecoder{}

// decodeHeader undoes RFC 2047 encoding, falling back to the raw value when
// the encoding is broken or the charset unknown.
func decodeHeader(s string) string {
	out, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

// ReadMessage parses a single RFC 5322 message.
func ReadMessage(r io.Reader) (Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return Message{}, err
	}
	var m Message
	m.MessageID = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
	m.Subject = decodeHeader(msg.Header.Get("Subject"))
	m.SenderName, m.SenderAddr = senderOf(msg.Header.Get("From"))
	if d, err := msg.Header.Date(); err == nil {
		m.Date = d
	}

	ct := msg.Header.Get("Content-Type")
	cte := msg.Header.Get("Content-Transfer-Encoding")
	if err := walkPart(&m, ct, cte, "", msg.Body); err != nil {
		return Message{}, err
	}
	m.Body = strings.TrimSpace(m.Body)
	return m, nil
}

// senderOf splits a From header into display name and address. Malformed
// headers still surrender a bare address when one is present anywhere in
// the value.
func senderOf(from string) (name, addr string) {
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.TrimSpace(a.Name), strings.ToLower(a.Address)
	}
	from = decodeHeader(from)
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.TrimSpace(a.Name), strings.ToLower(a.Address)
	}
	if loc := addrRe.FindStringIndex(from); loc != nil {
		n := strings.Trim(strings.TrimSpace(from[:loc[0]]), `"<> `)
		return n, strings.ToLower(from[loc[0]:loc[1]])
	}
	return "", ""
}

// walkPart descends into MIME parts, collecting text bodies and attachments.
func walkPart(m *Message, contentType, transferEnc, disposition string, r io.Reader) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return errMissingBoundary
		}
		mr := multipart.NewReader(r, boundary)
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := walkPart(m,
				p.Header.Get("Content-Type"),
				p.Header.Get("Content-Transfer-Encoding"),
				p.Header.Get("Content-Disposition"),
				p); err != nil {
				return err
			}
		}
	}

	if name := partFilename(disposition, params); name != "" {
		data, err := io.ReadAll(decodeTransfer(transferEnc, r))
		if err != nil {
			return err
		}
		m.Attachments = append(m.Attachments, Attachment{
			Filename: name,
			MIMEType: mediaType,
			Data:     data,
		})
		return nil
	}

	switch mediaType {
	case "text/plain":
		text, err := readText(transferEnc, params["charset"], r)
		if err != nil {
			return err
		}
		if m.Body != "" {
			m.Body += "\n"
		}
		m.Body += text
	case "text/html":
		// only used when no plain part showed up
		if m.Body == "" {
			text, err := readText(transferEnc, params["charset"], r)
			if err != nil {
				return err
			}
			m.Body = stripTags(text)
		}
	}
	return nil
}

// partFilename pulls the attachment name from Content-Disposition, falling
// back to the Content-Type name parameter older clients use.
func partFilename(disposition string, ctParams map[string]string) string {
	if disposition != "" {
		if _, dparams, err := mime.ParseMediaType(disposition); err == nil {
			if f := dparams["filename"]; f != "" {
				return decodeHeader(f)
			}
		}
	}
	if n := ctParams["name"]; n != "" {
		return decodeHeader(n)
	}
	return ""
}

// decodeTransfer undoes the Content-Transfer-Encoding. The base64 stream
// decoder skips CR and LF on its own.
func decodeTransfer(enc string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func readText(enc, charset string, r io.Reader) (string, error) {
	raw, err := io.ReadAll(decodeTransfer(enc, r))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(charset) {
	case "iso-8859-1", "latin1", "windows-1252":
		return latin1String(raw), nil
	default:
		return string(raw), nil
	}
}

// latin1String maps each byte to its code point, enough for the legacy
// clients that still send un-negotiated 8-bit bodies.
func latin1String(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
