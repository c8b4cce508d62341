// Package postmark sends email through the Postmark transactional API. It
// is the production email sink for escalation alerts and for the fallback
// emails sent to users whose notification delivery was dead-lettered.
//
//	sender, err := postmark.New(postmark.Config{
//		PostmarkServerToken:  os.Getenv("POSTMARK_SERVER_TOKEN"),
//		PostmarkAccountToken: os.Getenv("POSTMARK_ACCOUNT_TOKEN"),
//		SenderEmail:          "alerts@clinic.example",
//		SupportEmail:         "support@clinic.example",
//	})
//	if err != nil {
//		return err
//	}
//	escalator := escalation.New(sender, "oncall@clinic.example")
//
// A transport failure and a non-zero Postmark error code both return an
// error wrapping email.ErrFailedToSendEmail. The Tag of SendEmailParams
// becomes the Postmark tag, so "critical-alert" and "notification-failed"
// messages can be filtered in the Postmark dashboard.
package postmark
