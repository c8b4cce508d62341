// Package smtp sends email through a standard SMTP server. It is the
// self-hosted alternative to the Postmark sender for escalation alerts and
// notification fallback emails.
//
//	sender, err := smtp.New(smtp.Config{
//		Host:         "smtp.clinic.example",
//		Port:         587,
//		Username:     "alerts@clinic.example",
//		Password:     os.Getenv("SMTP_PASSWORD"),
//		TLSMode:      smtp.ModeSTARTTLS,
//		SenderEmail:  "alerts@clinic.example",
//		SupportEmail: "support@clinic.example",
//	})
//	if err != nil {
//		return err
//	}
//	escalator := escalation.New(sender, "oncall@clinic.example")
//
// TLSMode selects how the connection is secured: "starttls" upgrades a
// plain connection (port 587), "tls" dials TLS directly (port 465) and
// "plain" sends without encryption, which net/smtp only allows against
// localhost. Each message opens its own connection bounded by ctx and
// Config.Timeout. The Tag of SendEmailParams is sent as the
// X-Clinicflow-Tag header.
package smtp
