package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultGatewayBaseURL = "https://api.razorpay.com/v1"

// Gateway is a thin client for the Razorpay order and payout endpoints.
// The base URL is overridable so tests can point it at a local server.
type Gateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewGateway() *Gateway {
	baseURL := os.Getenv("RAZORPAY_BASE_URL")
	if baseURL == "" {
		baseURL = defaultGatewayBaseURL
	}
	return &Gateway{
		baseURL:   baseURL,
		keyID:     os.Getenv("RAZORPAY_KEY_ID"),
		keySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder registers an order for the given amount in rupees. Razorpay
// counts in paise.
func (g *Gateway) CreateOrder(amountRupees float64, receipt string) (*Order, error) {
	body := map[string]any{
		"amount":   int64(amountRupees * 100),
		"currency": "INR",
		"receipt":  receipt,
	}
	var order Order
	if err := g.post("/orders", body, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PayoutUPI transfers the amount to a UPI address.
func (g *Gateway) PayoutUPI(upiID string, amountRupees float64, reference string) error {
	body := map[string]any{
		"mode":     "UPI",
		"amount":   int64(amountRupees * 100),
		"currency": "INR",
		"fund_account": map[string]any{
			"account_type": "vpa",
			"vpa":          map[string]string{"address": upiID},
		},
		"reference_id": reference,
	}
	return g.post("/payouts", body, nil)
}

// PayoutBank transfers the amount to a bank account over IMPS.
func (g *Gateway) PayoutBank(accountNumber, name string, amountRupees float64, reference string) error {
	body := map[string]any{
		"mode":     "IMPS",
		"amount":   int64(amountRupees * 100),
		"currency": "INR",
		"fund_account": map[string]any{
			"account_type": "bank_account",
			"bank_account": map[string]string{
				"name":           name,
				"account_number": accountNumber,
			},
		},
		"reference_id": reference,
	}
	return g.post("/payouts", body, nil)
}

func (g *Gateway) post(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature Razorpay puts in
// the X-Razorpay-Signature header against the raw request body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
