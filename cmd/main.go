package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ekrisshak/ekrisshak-server/cmd/api"
	"github.com/ekrisshak/ekrisshak-server/cmd/models"
	"github.com/ekrisshak/ekrisshak-server/db"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "seed":
			runSeed()
			return
		case "remind":
			runReminders()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func openDB() *gorm.DB {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	return DB
}

func closeDB(DB *gorm.DB) {
	sqlDB, _ := DB.DB()
	sqlDB.Close()
	log.Println("Database connection closed")
}

func runMigrations() {
	DB := openDB()
	defer closeDB(DB)
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.State{}:                "State",
		&models.District{}:             "District",
		&models.User{}:                 "User",
		&models.KrisshakProfile{}:      "KrisshakProfile",
		&models.BhooswamiProfile{}:     "BhooswamiProfile",
		&models.StateAdminProfile{}:    "StateAdminProfile",
		&models.DistrictAdminProfile{}: "DistrictAdminProfile",
		&models.Rating{}:               "Rating",
		&models.Favorite{}:             "Favorite",
		&models.AppointmentRequest{}:   "AppointmentRequest",
		&models.Appointment{}:          "Appointment",
		&models.CalendarEvent{}:        "CalendarEvent",
		&models.Notification{}:         "Notification",
		&models.Device{}:               "Device",
		&models.Payment{}:              "Payment",
		&models.ContactMessage{}:       "ContactMessage",
		&models.Notice{}:               "Notice",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	if err := createDirectoryIfNotExist("uploads/profile_pictures"); err != nil {
		return err
	}
	log.Println("All migrations and directory setup completed successfully")
	return nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}

// runSeed loads the state and district directory. Seeding is idempotent:
// existing rows are left alone.
func runSeed() {
	DB := openDB()
	defer closeDB(DB)
	log.Println("Connected to the database for seeding")

	directory := map[string][]string{
		"Bihar":         {"Patna", "Gaya", "Muzaffarpur", "Bhagalpur", "Darbhanga"},
		"Uttar Pradesh": {"Lucknow", "Varanasi", "Kanpur", "Agra", "Gorakhpur"},
		"Punjab":        {"Ludhiana", "Amritsar", "Jalandhar", "Patiala", "Bathinda"},
		"Maharashtra":   {"Pune", "Nagpur", "Nashik", "Aurangabad", "Kolhapur"},
		"West Bengal":   {"Kolkata", "Howrah", "Bardhaman", "Malda", "Siliguri"},
	}

	for stateName, districts := range directory {
		var state models.State
		if err := DB.Where("name = ?", stateName).FirstOrCreate(&state, models.State{Name: stateName}).Error; err != nil {
			log.Fatalf("Error seeding state %s: %v", stateName, err)
		}
		for _, districtName := range districts {
			district := models.District{Name: districtName, StateID: state.ID}
			if err := DB.Where("name = ? AND state_id = ?", districtName, state.ID).
				FirstOrCreate(&district).Error; err != nil {
				log.Fatalf("Error seeding district %s: %v", districtName, err)
			}
		}
		log.Printf("Seeded %s with %d districts", stateName, len(districts))
	}
	log.Println("Seeding completed successfully")
}

// runReminders notifies users about manual calendar events starting within
// the next hour. Meant for a cron schedule; a duplicate run produces no
// duplicate reminders.
func runReminders() {
	DB := openDB()
	defer closeDB(DB)
	log.Println("Connected to the database for reminders")

	now := time.Now()
	windowEnd := now.Add(time.Hour)

	var events []models.CalendarEvent
	err := DB.Where("event_type = ? AND date >= ? AND date < ?",
		models.EventManual, now.Truncate(24*time.Hour), windowEnd).
		Find(&events).Error
	if err != nil {
		log.Fatalf("Error loading events: %v", err)
	}

	reminded := 0
	for i := range events {
		event := &events[i]
		start := time.Date(event.Date.Year(), event.Date.Month(), event.Date.Day(),
			event.Time.Hour(), event.Time.Minute(), 0, 0, now.Location())
		if start.Before(now) || start.After(windowEnd) {
			continue
		}

		message := fmt.Sprintf("Reminder: %q starts at %s.", event.Title, start.Format("03:04 PM"))
		var existing int64
		DB.Model(&models.Notification{}).
			Where("recipient_id = ? AND notification_type = ? AND message = ?",
				event.UserID, models.NotificationCalendar, message).
			Count(&existing)
		if existing > 0 {
			continue
		}

		recipientID := event.UserID
		notification := models.Notification{
			RecipientID:      &recipientID,
			NotificationType: models.NotificationCalendar,
			Title:            "Upcoming Event",
			Message:          message,
		}
		if err := DB.Create(&notification).Error; err != nil {
			log.Printf("Error creating reminder for event %d: %v", event.ID, err)
			continue
		}
		reminded++
	}
	log.Printf("Sent %d reminders", reminded)
}

func startServer() {
	DB := openDB()
	defer closeDB(DB)
	log.Println("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()
	log.Printf("Server running on port %s", port)

	<-quit
	log.Println("Shutting down server...")
}

func clearDatabase(DB *gorm.DB, tables []interface{}) error {
	if len(tables) == 0 {
		tables = []interface{}{
			&models.Notification{},
			&models.Device{},
			&models.CalendarEvent{},
			&models.Payment{},
			&models.Appointment{},
			&models.AppointmentRequest{},
			&models.Rating{},
			&models.Favorite{},
			&models.ContactMessage{},
			&models.Notice{},
			&models.KrisshakProfile{},
			&models.BhooswamiProfile{},
			&models.StateAdminProfile{},
			&models.DistrictAdminProfile{},
			&models.User{},
			&models.District{},
			&models.State{},
		}
	}

	log.Println("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}
	return nil
}

func runDatabaseClear() {
	DB := openDB()
	defer closeDB(DB)

	log.Println("Preparing to clear database...")

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	var tableNames string
	fmt.Print("Enter table names to clear (comma separated) or leave blank to clear all: ")
	fmt.Scanln(&tableNames)

	var tables []interface{}
	if tableNames != "" {
		for _, table := range strings.Split(tableNames, ",") {
			switch strings.TrimSpace(table) {
			case "State":
				tables = append(tables, &models.State{})
			case "District":
				tables = append(tables, &models.District{})
			case "User":
				tables = append(tables, &models.User{})
			case "KrisshakProfile":
				tables = append(tables, &models.KrisshakProfile{})
			case "BhooswamiProfile":
				tables = append(tables, &models.BhooswamiProfile{})
			case "Rating":
				tables = append(tables, &models.Rating{})
			case "Favorite":
				tables = append(tables, &models.Favorite{})
			case "AppointmentRequest":
				tables = append(tables, &models.AppointmentRequest{})
			case "Appointment":
				tables = append(tables, &models.Appointment{})
			case "CalendarEvent":
				tables = append(tables, &models.CalendarEvent{})
			case "Notification":
				tables = append(tables, &models.Notification{})
			case "Device":
				tables = append(tables, &models.Device{})
			case "Payment":
				tables = append(tables, &models.Payment{})
			case "ContactMessage":
				tables = append(tables, &models.ContactMessage{})
			case "Notice":
				tables = append(tables, &models.Notice{})
			default:
				log.Printf("Unknown table: %s", table)
			}
		}
	}

	if err := clearDatabase(DB, tables); err != nil {
		log.Fatalf("Error clearing database: %v", err)
	}
	log.Println("Database cleared successfully")
}
