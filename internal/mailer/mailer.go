package mailer

// Mailer defines the interface for sending account emails.
type Mailer interface {
	SendWelcome(toEmail, toName string) error
}

// Noop discards every mail. Used when outgoing mail is disabled.
type Noop struct{}

func (Noop) SendWelcome(toEmail, toName string) error { return nil }
