package notification

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"
)

// EmailSender delivers appointment confirmations over SMTP. Credentials
// are read from the environment at send time.
type EmailSender struct{}

func NewEmailSender() *EmailSender {
	return &EmailSender{}
}

func (s *EmailSender) SendAppointmentConfirmation(email, patientName, specialty, date, startTime string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Appointment confirmed")
	m.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nYour %s appointment on %s at %s has been confirmed. Please arrive a few minutes early.\n\nSee you soon.",
		patientName, specialty, date, startTime))

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(m)
}
