package transport

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FormatAddress renders a display-name address header value.
func FormatAddress(email, name string) string {
	if name == "" {
		return email
	}
	return mime.QEncoding.Encode("utf-8", name) + " <" + email + ">"
}

// NewMessageID generates a Message-ID header value for the given sending
// domain.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return "<" + uuid.New().String() + "@" + domain + ">"
}

// BuildRaw assembles the RFC 5322 wire form of a message. The HTML body
// wins when both bodies are present; a text-only message is sent as plain
// text.
func BuildRaw(msg *Message, messageID string) []byte {
	var b strings.Builder

	writeHeader(&b, "From", msg.From)
	writeHeader(&b, "To", msg.To)
	writeHeader(&b, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	if msg.ReplyTo != "" {
		writeHeader(&b, "Reply-To", msg.ReplyTo)
	}
	writeHeader(&b, "Date", time.Now().Format(time.RFC1123Z))
	writeHeader(&b, "Message-ID", messageID)
	writeHeader(&b, "MIME-Version", "1.0")
	for k, v := range msg.Headers {
		writeHeader(&b, k, v)
	}

	body := msg.Text
	contentType := `text/plain; charset="utf-8"`
	if msg.HTML != "" {
		body = msg.HTML
		contentType = `text/html; charset="utf-8"`
	}
	writeHeader(&b, "Content-Type", contentType)
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	return []byte(b.String())
}

func writeHeader(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\r\n", sanitizeHeader(key), sanitizeHeader(value))
}

// sanitizeHeader strips CR and LF so rendered subscriber fields can never
// inject additional headers into the wire form.
func sanitizeHeader(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// extractDomain returns the lowercased domain part of an address, or ""
// for malformed input.
func extractDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	domain := email[at+1:]
	if end := strings.LastIndex(domain, ">"); end >= 0 {
		domain = domain[:end]
	}
	return strings.ToLower(domain)
}
