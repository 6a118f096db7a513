package notify

import (
	"fmt"
	"log"
	"time"
)

// BroadcastTopic carries notices and other announcements addressed to every
// connected user.
const BroadcastTopic = "broadcast"

// UserTopic is the per-user delivery topic.
func UserTopic(userID uint) string {
	return fmt.Sprintf("user.%d", userID)
}

// Payload is the real-time notification envelope pushed to clients.
type Payload struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher fans a payload out to whatever delivers it: a broker in
// production, a recorder in tests. Callers treat failures as non-fatal
// because the primary mutation has already committed.
type Dispatcher interface {
	Notify(topic string, payload Payload) error
}

// LogDispatcher writes payloads to the process log. It backs deployments
// without a broker and keeps the dispatch path observable in development.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Notify(topic string, payload Payload) error {
	log.Printf("[notify] %s :: %s | %s", topic, payload.Title, payload.Message)
	return nil
}
