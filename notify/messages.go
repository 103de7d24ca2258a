package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/MrEthical07/credcore"
)

type message struct {
	subject string
	body    *template.Template
}

var messages = map[credcore.NotificationKind]message{
	credcore.NotifyEmailVerification: {
		subject: "Confirm your email address",
		body: template.Must(template.New("verify").Parse(`Hello{{with .display_name}} {{.}}{{end}},

Your verification code is {{.code}}. It expires at {{.expires_at}}.

If you did not create an account you can ignore this message.
`)),
	},
	credcore.NotifyPasswordReset: {
		subject: "Your password reset code",
		body: template.Must(template.New("reset").Parse(`Hello{{with .display_name}} {{.}}{{end}},

Use the code {{.code}} to choose a new password. It expires at {{.expires_at}}.

If you did not ask for a reset, your password has not been changed.
`)),
	},
	credcore.NotifyResetUnknownAccount: {
		subject: "Password reset request",
		body: template.Must(template.New("unknown").Parse(`Someone asked to reset the password for this address, but no account uses it.

If this was you, you may have signed up with a different email.
`)),
	},
	credcore.NotifyPasswordChanged: {
		subject: "Your password was changed",
		body: template.Must(template.New("changed").Parse(`Hello{{with .display_name}} {{.}}{{end}},

The password for your account was just changed. If this was not you, reset it now.
`)),
	},
}

// Render returns the subject and plain-text body for kind.
func Render(kind credcore.NotificationKind, payload map[string]string) (subject, body string, err error) {
	m, ok := messages[kind]
	if !ok {
		return "", "", fmt.Errorf("notify: no template for %q", kind)
	}
	var buf bytes.Buffer
	if err := m.body.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("notify: render %q: %w", kind, err)
	}
	return m.subject, buf.String(), nil
}
