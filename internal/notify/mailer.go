// Package notify renders and delivers account emails.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"
)

const (
	SubjectVerification  = "Verify your TaskFlow account"
	SubjectWelcome       = "Welcome to TaskFlow!"
	SubjectPasswordReset = "Reset your TaskFlow password"
)

//go:embed templates/*.html
var templateFS embed.FS

// Config controls message content shared by every Mailer.
type Config struct {
	From        string
	FrontendURL string
	// VerificationTTL and ResetTTL are only shown to the recipient.
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	// Link is the call-to-action URL embedded in HTML.
	Link string
}

type templateData struct {
	Heading string
	Accent  template.CSS
	Name    string
	Link    string
	Expires string
}

type renderer struct {
	cfg   Config
	pages map[string]*template.Template
}

func newRenderer(cfg Config) (*renderer, error) {
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	r := &renderer{cfg: cfg, pages: make(map[string]*template.Template)}

	for _, page := range []string{"verification", "welcome", "password_reset"} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

func (r *renderer) render(page, to, subject string, data templateData) (Message, error) {
	var buf bytes.Buffer
	if err := r.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render %s email: %w", page, err)
	}
	return Message{To: to, Subject: subject, HTML: buf.String(), Link: data.Link}, nil
}

func (r *renderer) verification(to, name, token string) (Message, error) {
	return r.render("verification", to, SubjectVerification, templateData{
		Heading: "Welcome to TaskFlow!",
		Accent:  "linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
		Name:    name,
		Link:    r.cfg.FrontendURL + "/verify-email?token=" + url.QueryEscape(token),
		Expires: humanize(r.cfg.VerificationTTL),
	})
}

func (r *renderer) welcome(to, name string) (Message, error) {
	return r.render("welcome", to, SubjectWelcome, templateData{
		Heading: "Email Verified!",
		Accent:  "linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
		Name:    name,
		Link:    r.cfg.FrontendURL + "/dashboard",
	})
}

func (r *renderer) passwordReset(to, name, token string) (Message, error) {
	return r.render("password_reset", to, SubjectPasswordReset, templateData{
		Heading: "Password Reset Request",
		Accent:  "linear-gradient(135deg, #f59e0b 0%, #ef4444 100%)",
		Name:    name,
		Link:    r.cfg.FrontendURL + "/reset-password?token=" + url.QueryEscape(token),
		Expires: humanize(r.cfg.ResetTTL),
	})
}

func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
