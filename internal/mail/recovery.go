package mail

import (
	"bytes"
	"text/template"
)

// RecoverySubject is the subject of password recovery mails.
const RecoverySubject = "Your password has been reset"

var recoveryTemplate = template.Must(template.New("recovery").Parse(`Hello {{.Name}},

a password reset was requested for your account from {{.Host}}.

Your new password is: {{.Password}}

Please sign in and change it as soon as possible.
`))

// RecoveryData fills the recovery template.
type RecoveryData struct {
	Name     string
	Email    string
	Password string
	Host     string
}

// RecoveryMessage renders the password recovery mail for d.
func RecoveryMessage(d RecoveryData) (Message, error) {
	if d.Name == "" {
		d.Name = d.Email
	}
	var buf bytes.Buffer
	if err := recoveryTemplate.Execute(&buf, d); err != nil {
		return Message{}, err
	}
	return Message{
		To:      d.Email,
		ToName:  d.Name,
		Subject: RecoverySubject,
		Text:    buf.String(),
	}, nil
}
