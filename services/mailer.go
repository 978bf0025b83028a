package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/config"
)

// Mailer is the outbound email-delivery collaborator. Delivery is
// best-effort: callers never roll back state when Send fails, a resend
// path exists instead.
type Mailer interface {
	Send(recipient, template string, data map[string]interface{}) error
}

// Mail template names
const (
	TemplatePickInvite = "pick_invite"
	TemplateAdminLogin = "admin_login"
)

// HTTPMailer delivers through an external mail service over HTTP.
type HTTPMailer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// MockMailer logs instead of delivering. Used in development and tests.
type MockMailer struct{}

// NewMailer picks the implementation from configuration.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.Mail.MockMail || cfg.Mail.ServiceURL == "" {
		return &MockMailer{}
	}
	return &HTTPMailer{
		BaseURL: cfg.Mail.ServiceURL,
		Token:   cfg.Mail.ServiceToken,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Send posts one message to the mail service.
func (m *HTTPMailer) Send(recipient, template string, data map[string]interface{}) error {
	url := fmt.Sprintf("%s/send", m.BaseURL)

	reqBody := map[string]interface{}{
		"to":       recipient,
		"template": template,
		"data":     data,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.Token)

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Printf("Mail service returned %d for template %s: %s", resp.StatusCode, template, string(body))
		return fmt.Errorf("mail delivery failed: %d", resp.StatusCode)
	}

	return nil
}

// Send logs the message that would have been delivered.
func (m *MockMailer) Send(recipient, template string, data map[string]interface{}) error {
	log.Printf("[MockMailer] to=%s template=%s data=%v", recipient, template, data)
	return nil
}
