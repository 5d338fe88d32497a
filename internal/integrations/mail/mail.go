// Package mail notifies reporters by email.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	gomail "github.com/wneessen/go-mail"
)

// Options configures a Mailer.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends HTML mail over authenticated SMTP.
type Mailer struct {
	client *gomail.Client
	from   string
}

// New creates a Mailer. Port 465 uses implicit TLS, other ports STARTTLS.
func New(opts Options) (*Mailer, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("email host is required")
	}

	clientOpts := []gomail.Option{
		gomail.WithPort(opts.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(opts.Username),
		gomail.WithPassword(opts.Password),
	}
	if opts.Port == 465 {
		clientOpts = append(clientOpts, gomail.WithSSL())
	} else {
		clientOpts = append(clientOpts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}

	client, err := gomail.NewClient(opts.Host, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	from := opts.From
	if from == "" {
		from = opts.Username
	}
	return &Mailer{client: client, from: from}, nil
}

// Send delivers an HTML message to a single recipient.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	msg, err := NewMessage(m.from, to, subject, html)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// NewMessage builds the message Send delivers.
func NewMessage(from, to, subject, html string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, html)
	return msg, nil
}

var closedReportTemplate = template.Must(template.New("closed").Parse(`
<h3>Your bug report has been closed.</h3>
<p><strong>Repository:</strong> {{.Repo}}</p>
<p><strong>Issue:</strong> #{{.Issue}}</p>
<p>{{if .ShowLink}}For more information on how your report was handled, please check the issue page: <a href="{{.URL}}">{{.URL}}</a>{{else}}You cannot access this issue, as this form was configured to keep the link hidden.{{end}}</p>
<p>Thank you for your help!</p>
`))

// ClosedReport renders the subject and body sent when a reporter's issue is closed.
func ClosedReport(repo string, issue int, showLink bool) (string, string, error) {
	data := struct {
		Repo     string
		Issue    int
		ShowLink bool
		URL      string
	}{repo, issue, showLink, fmt.Sprintf("https://github.com/%s/issues/%d", repo, issue)}

	var buf bytes.Buffer
	if err := closedReportTemplate.Execute(&buf, data); err != nil {
		return "", "", err
	}
	return fmt.Sprintf("Bugspot (%s - Issue #%d)", repo, issue), buf.String(), nil
}
