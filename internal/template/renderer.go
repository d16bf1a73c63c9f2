// Package template renders campaign templates for individual subscribers.
package template

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mailtide/mailtide/internal/models"
)

// token pattern for substitution: {{tokenName}}
var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z]+)\s*\}\}`)

// Rendered is the result of rendering a template for one subscriber.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer substitutes per-subscriber tokens into a template's subject and
// body. It is stateless apart from the unsubscribe base URL and safe for
// concurrent use.
type Renderer struct {
	unsubscribeBase string
}

// NewRenderer creates a renderer. unsubscribeBase is the prefix for
// constructed unsubscribe links, e.g. "https://mail.example.com".
func NewRenderer(unsubscribeBase string) *Renderer {
	return &Renderer{unsubscribeBase: strings.TrimRight(unsubscribeBase, "/")}
}

// Render substitutes the four supported tokens (firstName, lastName, email,
// unsubscribe) with subscriber fields. Unknown tokens are left verbatim.
func (r *Renderer) Render(tmpl *models.Template, sub *models.Subscriber) *Rendered {
	vars := map[string]string{
		"firstName":   sub.FirstName,
		"lastName":    sub.LastName,
		"email":       sub.Email,
		"unsubscribe": r.UnsubscribeURL(sub),
	}

	return &Rendered{
		Subject: substitute(tmpl.Subject, vars),
		HTML:    substitute(tmpl.HTML, vars),
		Text:    substitute(tmpl.Text, vars),
	}
}

// UnsubscribeURL builds the unsubscribe link for a subscriber.
func (r *Renderer) UnsubscribeURL(sub *models.Subscriber) string {
	q := url.Values{}
	q.Set("email", sub.Email)
	if sub.ListID != "" {
		q.Set("list", sub.ListID)
	}
	return r.unsubscribeBase + "/unsubscribe?" + q.Encode()
}

func substitute(s string, vars map[string]string) string {
	if s == "" {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return value
		}
		// Keep original if token not recognized
		return match
	})
}
