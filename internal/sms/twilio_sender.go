package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioSender envía SMS usando la API REST de Twilio.
type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
}

func NewTwilioSender(accountSID, authToken, fromNumber string) (*TwilioSender, error) {
	if strings.TrimSpace(accountSID) == "" || strings.TrimSpace(authToken) == "" {
		return nil, fmt.Errorf("twilio credentials are required")
	}
	if strings.TrimSpace(fromNumber) == "" {
		return nil, fmt.Errorf("twilio from number is required")
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *TwilioSender) SendOTP(ctx context.Context, toPhoneNumber string, code string) error {
	message := fmt.Sprintf("Your verification code is %s. It is valid for 10 minutes.", code)
	return s.sendSMS(ctx, toPhoneNumber, message)
}

func (s *TwilioSender) sendSMS(ctx context.Context, toPhoneNumber, message string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.accountSID)

	data := url.Values{}
	data.Set("To", toPhoneNumber)
	data.Set("From", s.fromNumber)
	data.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
