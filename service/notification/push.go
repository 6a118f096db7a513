package notification

import (
	"fmt"
	"log"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"gorm.io/gorm"
)

// Pusher delivers push notifications to a user's registered Expo devices.
type Pusher struct {
	db         *gorm.DB
	expoClient *expo.PushClient
}

func NewPusher(db *gorm.DB) *Pusher {
	return &Pusher{
		db:         db,
		expoClient: expo.NewPushClient(nil),
	}
}

// SendToUser pushes to every device the user has registered. Users without
// devices are not an error; the in-app notification still reaches them.
func (p *Pusher) SendToUser(userID uint, title, body string, data map[string]string) error {
	var devices []models.Device
	if err := p.db.Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(devices))
	for _, device := range devices {
		tokens = append(tokens, device.Token)
	}
	return p.send(tokens, title, body, data)
}

func (p *Pusher) send(tokenStrings []string, title, body string, data map[string]string) error {
	var validTokens []expo.ExponentPushToken
	var invalidTokens []string

	for _, tokenString := range tokenStrings {
		pushToken, err := expo.NewExponentPushToken(tokenString)
		if err != nil {
			log.Printf("Invalid push token format %s: %v", tokenString, err)
			invalidTokens = append(invalidTokens, tokenString)
			continue
		}
		validTokens = append(validTokens, pushToken)
	}

	if len(invalidTokens) > 0 {
		p.cleanupInvalidTokens(invalidTokens)
	}
	if len(validTokens) == 0 {
		return fmt.Errorf("no valid push tokens found")
	}

	pushMessage := &expo.PushMessage{
		To:       validTokens,
		Body:     body,
		Title:    title,
		Sound:    "default",
		Priority: expo.DefaultPriority,
		Data:     data,
	}

	response, err := p.expoClient.Publish(pushMessage)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %v", err)
	}
	if validationErr := response.ValidateResponse(); validationErr != nil {
		return fmt.Errorf("notification validation failed: %v", validationErr)
	}
	return nil
}

func (p *Pusher) cleanupInvalidTokens(tokens []string) {
	for _, token := range tokens {
		if err := p.db.Unscoped().Where("token = ?", token).Delete(&models.Device{}).Error; err != nil {
			log.Printf("Error cleaning up invalid token %s: %v", token, err)
		} else {
			log.Printf("Cleaned up invalid token: %s", token)
		}
	}
}
