package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// PlatformFee is added to every order, in rupees.
const PlatformFee = 11.0

type PaymentHandler struct {
	db         *gorm.DB
	gateway    *Gateway
	mailer     utils.Mailer
	dispatcher notify.Dispatcher
}

func NewPaymentHandler(db *gorm.DB, gateway *Gateway, mailer utils.Mailer, dispatcher notify.Dispatcher) *PaymentHandler {
	return &PaymentHandler{db: db, gateway: gateway, mailer: mailer, dispatcher: dispatcher}
}

func (h *PaymentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/payments/rate/{userId}", utils.AuthMiddleware(h.GetRate)).Methods("GET")
	router.HandleFunc("/payments/orders", utils.AuthMiddleware(h.CreateOrder)).Methods("POST")
	router.HandleFunc("/payments", utils.AuthMiddleware(h.ListPayments)).Methods("GET")
	// Webhook is authenticated by signature, not by JWT.
	router.HandleFunc("/payments/webhook", h.HandleWebhook).Methods("POST")
}

// GetRate returns a krisshak's listed price so clients can show the amount
// before ordering. The server recomputes it again at order time.
func (h *PaymentHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var profile models.KrisshakProfile
	if err := h.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		http.Error(w, "Krisshak not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"amount":       profile.Price,
		"platform_fee": PlatformFee,
		"total":        profile.Price + PlatformFee,
	})
}

// CreateOrder opens a gateway order. The amount is never trusted from the
// client: a primary payment is priced from the krisshak's profile, and only
// an explicitly custom payment (a tip) uses the requested amount.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		RecipientID uint    `json:"recipient_id"`
		Amount      float64 `json:"amount"`
		IsCustom    bool    `json:"is_custom"`
		Purpose     string  `json:"purpose"`
		Type        string  `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = models.PaymentTypePrimary
	}
	if req.Type != models.PaymentTypePrimary && req.Type != models.PaymentTypeTip {
		http.Error(w, "Invalid payment type", http.StatusBadRequest)
		return
	}

	amount := req.Amount
	if !req.IsCustom {
		var profile models.KrisshakProfile
		if err := h.db.Where("user_id = ?", req.RecipientID).First(&profile).Error; err != nil {
			http.Error(w, "Recipient not found", http.StatusNotFound)
			return
		}
		amount = profile.Price
	}
	if amount <= 0 {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	calculated := amount + PlatformFee
	receipt := fmt.Sprintf("pay_%d_%d", userID, time.Now().Unix())
	order, err := h.gateway.CreateOrder(calculated, receipt)
	if err != nil {
		log.Printf("error creating gateway order: %v", err)
		http.Error(w, "Failed to create order", http.StatusBadGateway)
		return
	}

	paymentRecord := models.Payment{
		SenderID:          userID,
		RecipientID:       req.RecipientID,
		Amount:            amount,
		PlatformFee:       PlatformFee,
		CalculatedAmount:  calculated,
		Purpose:           req.Purpose,
		Type:              req.Type,
		IsCustom:          req.IsCustom,
		Status:            models.PaymentPending,
		ExternalPaymentID: order.ID,
	}
	if err := h.db.Create(&paymentRecord).Error; err != nil {
		log.Printf("error recording payment: %v", err)
		http.Error(w, "Failed to record payment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"order_id": order.ID,
		"amount":   calculated,
		"currency": "INR",
		"key_id":   os.Getenv("RAZORPAY_KEY_ID"),
	})
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Amount  int64  `json:"amount"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook settles an order once the gateway reports capture. The
// ledger row is the idempotency anchor: a row already in a final state is
// acknowledged without side effects, so gateway retries are harmless.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	secret := os.Getenv("RAZORPAY_WEBHOOK_SECRET")
	if !VerifyWebhookSignature(body, r.Header.Get("X-Razorpay-Signature"), secret) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if event.Event != "payment.captured" {
		w.WriteHeader(http.StatusOK)
		return
	}

	entity := event.Payload.Payment.Entity
	var paymentRecord models.Payment
	if err := h.db.Where("external_payment_id = ?", entity.OrderID).First(&paymentRecord).Error; err != nil {
		http.Error(w, "Unknown order", http.StatusNotFound)
		return
	}
	if paymentRecord.Status != models.PaymentPending {
		w.WriteHeader(http.StatusOK)
		return
	}

	if entity.Amount != int64(paymentRecord.CalculatedAmount*100) {
		log.Printf("captured amount %d does not match order %s", entity.Amount, entity.OrderID)
		http.Error(w, "Amount mismatch", http.StatusBadRequest)
		return
	}

	paymentRecord.Status = models.PaymentCompleted
	paymentRecord.TransactionID = entity.ID
	if err := h.db.Save(&paymentRecord).Error; err != nil {
		log.Printf("error settling payment %d: %v", paymentRecord.ID, err)
		http.Error(w, "Failed to settle payment", http.StatusInternalServerError)
		return
	}

	h.payoutRecipient(&paymentRecord)
	h.notifySettled(&paymentRecord)

	w.WriteHeader(http.StatusOK)
}

// payoutRecipient forwards the base amount to the recipient, preferring UPI
// when the profile carries an address. The platform fee stays with us.
func (h *PaymentHandler) payoutRecipient(paymentRecord *models.Payment) {
	var profile models.KrisshakProfile
	if err := h.db.Where("user_id = ?", paymentRecord.RecipientID).First(&profile).Error; err != nil {
		log.Printf("no payout profile for user %d: %v", paymentRecord.RecipientID, err)
		return
	}

	reference := fmt.Sprintf("payout_%d", paymentRecord.ID)
	if profile.UpiID != "" {
		if err := h.gateway.PayoutUPI(profile.UpiID, paymentRecord.Amount, reference); err != nil {
			log.Printf("error paying out to UPI for payment %d: %v", paymentRecord.ID, err)
		}
		return
	}
	if profile.AccountNumber != "" {
		var recipient models.User
		if err := h.db.First(&recipient, paymentRecord.RecipientID).Error; err != nil {
			log.Printf("error loading payout recipient %d: %v", paymentRecord.RecipientID, err)
			return
		}
		if err := h.gateway.PayoutBank(profile.AccountNumber, recipient.Name, paymentRecord.Amount, reference); err != nil {
			log.Printf("error paying out to bank for payment %d: %v", paymentRecord.ID, err)
		}
		return
	}
	log.Printf("user %d has no payout destination", paymentRecord.RecipientID)
}

func (h *PaymentHandler) notifySettled(paymentRecord *models.Payment) {
	for _, target := range []struct {
		userID  uint
		message string
	}{
		{paymentRecord.SenderID, fmt.Sprintf("Your payment of Rs %.2f was successful.", paymentRecord.CalculatedAmount)},
		{paymentRecord.RecipientID, fmt.Sprintf("You received a payment of Rs %.2f.", paymentRecord.Amount)},
	} {
		recipientID := target.userID
		notification := models.Notification{
			RecipientID:      &recipientID,
			NotificationType: models.NotificationPayment,
			Title:            "Payment Update",
			Message:          target.message,
		}
		if err := h.db.Create(&notification).Error; err != nil {
			log.Printf("error creating payment notification: %v", err)
		}
		if err := h.dispatcher.Notify(notify.UserTopic(target.userID), notify.Payload{
			Title:     notification.Title,
			Message:   notification.Message,
			Timestamp: time.Now(),
		}); err != nil {
			log.Printf("error dispatching payment notification: %v", err)
			notify.CountDroppedDispatch()
		}
	}

	var sender models.User
	if err := h.db.First(&sender, paymentRecord.SenderID).Error; err != nil {
		notify.CountDroppedEmail()
		return
	}
	receipt := fmt.Sprintf(
		"Hello %s,\n\nYour payment was received.\n\nAmount: Rs %.2f\nPlatform fee: Rs %.2f\nTotal: Rs %.2f\nTransaction: %s\n",
		sender.Name, paymentRecord.Amount, paymentRecord.PlatformFee,
		paymentRecord.CalculatedAmount, paymentRecord.TransactionID)
	if err := h.mailer.Send([]string{sender.Email}, "Payment Receipt", receipt); err != nil {
		log.Printf("error emailing payment receipt: %v", err)
		notify.CountDroppedEmail()
	}
}

// ListPayments returns the caller's ledger entries, newest first.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payments []models.Payment
	if err := h.db.Where("sender_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		http.Error(w, "Failed to fetch payments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payments)
}
