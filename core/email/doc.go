// Package email defines the outbound email sink used by the escalation chain
// and the notification dead-letter handler.
//
// Every caller treats SendEmail failures as recoverable: an email that cannot
// be delivered is logged, never propagated into the workflow that raised it.
//
//	sender := email.NewDevSender("./dev_emails")
//	err := sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "admin@clinic.example",
//		Subject:  "[CRITICAL] scheduled job dead-lettered",
//		BodyHTML: "<p>job 42 failed</p>",
//		Tag:      "critical-alert",
//	})
//
// Production senders live in integration/email/postmark and integration/email/smtp.
package email
