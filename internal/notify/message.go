package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"github.com/google/uuid"
)

// Notification types.
const (
	TypeJobAccepted         = "JOB_ACCEPTED"
	TypeApplicationReceived = "APPLICATION_RECEIVED"
	TypeSubmissionReady     = "SUBMISSION_READY"
	TypePayoutApproved      = "PAYOUT_APPROVED"
	TypeDisputeResolved     = "DISPUTE_RESOLVED"
	TypeDisputeOpened       = "DISPUTE_OPENED"
	TypePaymentReceived     = "PAYMENT_RECEIVED"
)

// Notification is a message to one recipient about a job or payment.
type Notification struct {
	Type            string     `json:"type"`
	RecipientUserID uuid.UUID  `json:"recipient_user_id"`
	JobID           *uuid.UUID `json:"job_id,omitempty"`
	Amount          int64      `json:"amount,omitempty"`
	Resolution      string     `json:"resolution,omitempty"`
}

// Email is a rendered notification.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

const unknownJob = "Unknown Job"

var layout = template.Must(template.New("email").Parse(
	`<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">` +
		`<h2 style="color: #eab308;">&#9889; Bereka</h2>` +
		`<p>{{.}}</p>` +
		`<hr style="border-color: #e5e7eb; margin: 24px 0;" />` +
		`<p style="color: #6b7280; font-size: 12px;">This is an automated notification from Bereka.</p>` +
		`</div>`))

// Render builds the subject and body for n. jobTitle may be empty.
func Render(n Notification, to, jobTitle string) (Email, error) {
	if jobTitle == "" {
		jobTitle = unknownJob
	}
	amount := "Your payment"
	funds := "funds"
	if n.Amount > 0 {
		amount = FormatSats(n.Amount) + " sats"
		funds = amount
	}
	resolution := n.Resolution
	if resolution == "" {
		resolution = "See dashboard for details"
	}

	var subject, body string
	switch n.Type {
	case TypeJobAccepted:
		subject = "Your application has been accepted: " + jobTitle
		body = fmt.Sprintf("Congratulations! Your application for %q has been accepted. You can now start working on the task.", jobTitle)
	case TypeApplicationReceived:
		subject = "New application received: " + jobTitle
		body = fmt.Sprintf("Someone has applied to your job %q. Review the application in your dashboard.", jobTitle)
	case TypeSubmissionReady:
		subject = "Work submitted for review: " + jobTitle
		body = fmt.Sprintf("The worker has submitted their work for %q. Please review it in your dashboard.", jobTitle)
	case TypePayoutApproved:
		subject = "Payout approved: " + jobTitle
		body = fmt.Sprintf("Your work on %q has been approved! %s has been credited to your available balance.", jobTitle, amount)
	case TypeDisputeResolved:
		subject = "Dispute resolved: " + jobTitle
		body = fmt.Sprintf("The dispute for %q has been resolved. Resolution: %s.", jobTitle, resolution)
	case TypeDisputeOpened:
		subject = "A dispute has been opened: " + jobTitle
		body = fmt.Sprintf("A dispute has been opened on %q. An admin will review and resolve it.", jobTitle)
	case TypePaymentReceived:
		subject = fmt.Sprintf("Payment received: %s added", funds)
		body = fmt.Sprintf("Your Lightning payment of %s has been received and credited to your available balance.", funds)
	default:
		subject = "Bereka notification"
		body = "You have a new notification on Bereka. Check your dashboard for details."
	}

	var buf bytes.Buffer
	if err := layout.Execute(&buf, body); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", n.Type, err)
	}
	return Email{To: to, Subject: subject, Text: body, HTML: buf.String()}, nil
}

// FormatSats groups digits in thousands: 1234567 -> "1,234,567".
func FormatSats(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
