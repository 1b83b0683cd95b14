package services

import (
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends transactional email. Sends are best effort: a nil or
// unconfigured mailer silently skips, and failures never reach the caller.
type Mailer struct {
	apiKey    string
	fromEmail string
}

func NewMailer(apiKey, fromEmail string) *Mailer {
	return &Mailer{apiKey: apiKey, fromEmail: fromEmail}
}

func (m *Mailer) SendWelcome(email, name string) {
	// Safety: recover from any panic to avoid crashing the request path
	defer func() {
		if r := recover(); r != nil {
			log.Printf("mailer panic recovered: %v", r)
		}
	}()

	if m == nil || m.apiKey == "" {
		log.Println("welcome email skipped: SENDGRID_API_KEY not set")
		return
	}

	greeting := name
	if greeting == "" {
		greeting = "there"
	}

	plainTextContent := fmt.Sprintf(`Hi %s,

Welcome to Palette Studio. Describe a space and we will suggest three
interior color palettes for it, each with five Pantone colors and
matching inspiration photos.

Your account starts on the free plan with %d generations per month.

— Palette Studio`, greeting, FreeMonthlyLimit)

	from := mail.NewEmail("Palette Studio", m.fromEmail)
	to := mail.NewEmail(name, email)
	message := mail.NewSingleEmail(from, "Welcome to Palette Studio", to, plainTextContent, plainTextContent)
	client := sendgrid.NewSendClient(m.apiKey)

	response, err := client.Send(message)
	if err != nil {
		log.Printf("Error sending welcome email: %v", err)
	} else {
		log.Printf("Welcome email sent. Status Code: %d", response.StatusCode)
	}
}
