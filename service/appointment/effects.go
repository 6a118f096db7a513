package appointment

import (
	"bytes"
	"fmt"
	"log"

	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/cmd/utils"
	"github.com/ekrisshak/ekrisshak-server/service/notify"
	"github.com/jung-kurt/gofpdf"
	"gorm.io/gorm"
)

// PushSender is the push-notification edge; *notification.Pusher satisfies
// it in production.
type PushSender interface {
	SendToUser(userID uint, title, body string, data map[string]string) error
}

// SideEffects runs the post-commit mirror chain for a confirmed appointment:
// calendar sync, then notification fan-out, then confirmation email. The
// chain is explicit and ordered, with no save hooks, and every step is
// best-effort: a failed mirror is logged and counted, never allowed to fail
// the request whose transaction already committed. Run is idempotent:
// re-running it for an unchanged appointment creates no new rows.
type SideEffects struct {
	db         *gorm.DB
	mailer     utils.Mailer
	dispatcher notify.Dispatcher
	pusher     PushSender
}

func NewSideEffects(db *gorm.DB, mailer utils.Mailer, dispatcher notify.Dispatcher, pusher PushSender) *SideEffects {
	return &SideEffects{db: db, mailer: mailer, dispatcher: dispatcher, pusher: pusher}
}

func (s *SideEffects) Run(appointment *models.Appointment) {
	if appointment.Status != models.AppointmentConfirmed {
		return
	}

	if err := s.syncCalendar(appointment); err != nil {
		log.Printf("calendar sync failed for appointment %s: %v", appointment.ID, err)
		notify.CountDroppedCalendar()
	}
	s.notifyConfirmed(appointment)
	s.emailConfirmation(appointment)
}

// syncCalendar upserts exactly one appointment-type event per participant,
// keyed by (user, appointment). On a hit with a changed date/time the event
// is updated in place; an unchanged re-save touches nothing.
func (s *SideEffects) syncCalendar(appointment *models.Appointment) error {
	counterparty := map[uint]uint{
		appointment.KrisshakID:  appointment.BhooswamiID,
		appointment.BhooswamiID: appointment.KrisshakID,
	}

	for _, userID := range []uint{appointment.KrisshakID, appointment.BhooswamiID} {
		title := fmt.Sprintf("Appointment with %s", s.userEmail(counterparty[userID]))
		var event models.CalendarEvent
		err := s.db.Where("user_id = ? AND related_appointment_id = ?", userID, appointment.ID).
			First(&event).Error
		if err == gorm.ErrRecordNotFound {
			event = models.CalendarEvent{
				UserID:               userID,
				Title:                title,
				Description:          "Auto-scheduled from appointment.",
				Date:                 appointment.Date,
				Time:                 appointment.Time,
				EventType:            models.EventAppointment,
				RelatedAppointmentID: &appointment.ID,
			}
			if err := s.db.Create(&event).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		if !event.Date.Equal(appointment.Date) || !event.Time.Equal(appointment.Time) {
			event.Date = appointment.Date
			event.Time = appointment.Time
			if err := s.db.Save(&event).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// notifyConfirmed emits one in-app, one real-time and one push notification
// per participant per confirmed (date, time). De-duplication is a lookup on
// existing rows with the same recipient, type and message; approximate, not
// exactly-once.
func (s *SideEffects) notifyConfirmed(appointment *models.Appointment) {
	message := fmt.Sprintf("You have a confirmed appointment on %s at %s",
		appointment.Date.Format("Jan 02"), appointment.Time.Format("03:04 PM"))
	title := "Appointment Confirmed"
	senderID := appointment.BhooswamiID

	for _, userID := range []uint{appointment.KrisshakID, appointment.BhooswamiID} {
		var existing int64
		s.db.Model(&models.Notification{}).
			Where("recipient_id = ? AND notification_type = ? AND message = ?",
				userID, models.NotificationAppointment, message).
			Count(&existing)
		if existing > 0 {
			continue
		}

		recipientID := userID
		notification := models.Notification{
			RecipientID:      &recipientID,
			SenderID:         &senderID,
			NotificationType: models.NotificationAppointment,
			Title:            title,
			Message:          message,
		}
		if err := s.db.Create(&notification).Error; err != nil {
			log.Printf("error creating appointment notification for user %d: %v", userID, err)
			continue
		}

		if err := s.dispatcher.Notify(notify.UserTopic(userID), notify.Payload{
			Title:     notification.Title,
			Message:   notification.Message,
			Timestamp: notification.CreatedAt,
		}); err != nil {
			log.Printf("error dispatching appointment notification to user %d: %v", userID, err)
			notify.CountDroppedDispatch()
		}

		if s.pusher != nil {
			if err := s.pusher.SendToUser(userID, title, message, map[string]string{
				"appointment_id": appointment.ID,
			}); err != nil {
				log.Printf("error pushing appointment notification to user %d: %v", userID, err)
				notify.CountDroppedPush()
			}
		}
	}
}

func (s *SideEffects) emailConfirmation(appointment *models.Appointment) {
	var krisshak, bhooswami models.User
	if err := s.db.First(&krisshak, appointment.KrisshakID).Error; err != nil {
		log.Printf("error loading krisshak %d for confirmation email: %v", appointment.KrisshakID, err)
		notify.CountDroppedEmail()
		return
	}
	if err := s.db.First(&bhooswami, appointment.BhooswamiID).Error; err != nil {
		log.Printf("error loading bhooswami %d for confirmation email: %v", appointment.BhooswamiID, err)
		notify.CountDroppedEmail()
		return
	}

	pdf, err := confirmationPDF(appointment, &krisshak, &bhooswami)
	if err != nil {
		log.Printf("error generating confirmation PDF for appointment %s: %v", appointment.ID, err)
		notify.CountDroppedEmail()
		return
	}

	// One email per participant so each side gets its own copy.
	for _, email := range []string{krisshak.Email, bhooswami.Email} {
		err = s.mailer.SendWithAttachment(
			[]string{email},
			"Appointment Confirmation",
			"Your appointment has been confirmed. Please find the attached PDF.",
			"appointment.pdf", "application/pdf", pdf,
		)
		if err != nil {
			log.Printf("error sending confirmation email for appointment %s to %s: %v", appointment.ID, email, err)
			notify.CountDroppedEmail()
		}
	}
}

func confirmationPDF(appointment *models.Appointment, krisshak, bhooswami *models.User) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 12, "Appointment Confirmation")
	pdf.Ln(16)

	pdf.SetFont("Arial", "", 12)
	lines := []string{
		fmt.Sprintf("Bhooswami: %s", bhooswami.Email),
		fmt.Sprintf("Krisshak: %s", krisshak.Email),
		fmt.Sprintf("Date: %s", appointment.Date.Format("2006-01-02")),
		fmt.Sprintf("Time: %s", appointment.Time.Format("15:04")),
		fmt.Sprintf("Status: %s", appointment.Status),
	}
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SideEffects) userEmail(userID uint) string {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return "your counterparty"
	}
	return user.Email
}
