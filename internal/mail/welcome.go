package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"keepernest/internal/core"
)

const welcomeSubject = "Your keepernest account"

const welcomeText = `Hello {{.Name}},

An account has been created for you by {{.CreatedBy}}.

Employee ID: {{.EmployeeID}}
Login:       {{.To}}
Password:    {{.InitialPassword}}

Please change this password after your first sign-in.
`

const welcomeHTML = `<p>Hello {{.Name}},</p>
<p>An account has been created for you by {{.CreatedBy}}.</p>
<table>
  <tr><td>Employee ID</td><td>{{.EmployeeID}}</td></tr>
  <tr><td>Login</td><td>{{.To}}</td></tr>
  <tr><td>Password</td><td><code>{{.InitialPassword}}</code></td></tr>
</table>
<p>Please change this password after your first sign-in.</p>
`

var (
	welcomeTextTmpl = texttemplate.Must(texttemplate.New("welcome.txt").Parse(welcomeText))
	welcomeHTMLTmpl = htmltemplate.Must(htmltemplate.New("welcome.html").Parse(welcomeHTML))
)

// Notifier renders service notifications and hands them to a Sender.
type Notifier struct {
	sender Sender
	from   Address
}

var _ core.Mailer = (*Notifier)(nil)

// NewNotifier sends as from through sender.
func NewNotifier(sender Sender, from Address) *Notifier {
	return &Notifier{sender: sender, from: from}
}

// RenderWelcome builds the credential mail for a new employee.
func RenderWelcome(from Address, w core.WelcomeMail) (Message, error) {
	var text, html bytes.Buffer
	if err := welcomeTextTmpl.Execute(&text, w); err != nil {
		return Message{}, fmt.Errorf("render welcome text: %w", err)
	}
	if err := welcomeHTMLTmpl.Execute(&html, w); err != nil {
		return Message{}, fmt.Errorf("render welcome html: %w", err)
	}
	return Message{
		From:     from,
		To:       []Address{{Email: strings.TrimSpace(w.To), Name: w.Name}},
		Subject:  welcomeSubject,
		Text:     text.String(),
		HTML:     html.String(),
		Category: "welcome",
	}, nil
}

// SendWelcome implements core.Mailer.
func (n *Notifier) SendWelcome(ctx context.Context, w core.WelcomeMail) error {
	msg, err := RenderWelcome(n.from, w)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, msg)
}
