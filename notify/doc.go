// Package notify provides credcore.Notifier implementations: SMTP delivery
// through go-mail, a Kafka producer for an out-of-process mailer, and a zap
// logger for local development.
package notify
