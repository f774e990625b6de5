// Package mailer renders stored messages into RFC 5322 MIME and hands them
// to an ESP.
//
// Every rendered message carries its correlation id in the headers each
// supported provider echoes back on webhooks, so tracking events can be
// routed to the message's recipients:
//
//	X-Mailtrack-ID      plain copy, for logs and SMTP relays
//	X-SMTPAPI           SendGrid unique_args
//	X-Mailgun-Variables Mailgun user-variables
//	X-MSYS-API          SparkPost metadata
//	X-SES-MESSAGE-TAGS  SES message tags
//
// Bcc addresses are never written to the headers; they only appear in the
// envelope passed to a Sender.
package mailer
