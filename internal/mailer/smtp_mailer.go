package mailer

import (
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPMailerService implements the Mailer interface over SMTP.
type SMTPMailerService struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	senderName string
	logger     *zap.Logger
}

func NewSMTPMailerService(host string, port int, username, password, fromEmail, senderName string, logger *zap.Logger) *SMTPMailerService {
	return &SMTPMailerService{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		from:       fromEmail,
		senderName: senderName,
		logger:     logger.Named("SMTPMailerService"),
	}
}

// SendWelcome tells a freshly created user about their new account. Accounts
// are created by an administrator, so this is the user's first contact point.
func (s *SMTPMailerService) SendWelcome(toEmail, toName string) error {
	s.logger.Info("Sending welcome email",
		zap.String("toEmail", toEmail),
		zap.String("smtpHost", s.host),
		zap.Int("smtpPort", s.port))

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.from, s.senderName))
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", "Your account has been created")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nAn account has been created for you. You can sign in with this email address once an administrator activates it.\n", toName))

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)
	if err := d.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send welcome email", zap.String("toEmail", toEmail), zap.Error(err))
		return err
	}
	return nil
}
