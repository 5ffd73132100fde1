// Package notifier declares the alert-dispatch collaborator interface
// and the dedup-gated wiring that decides when to call it. Transport
// (SMTP, chat webhooks) is deliberately out of scope; this package only
// decides whether and what to send.
package notifier
