package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clinvia/clinica-server/cmd/api"
	"github.com/clinvia/clinica-server/cmd/models"
	"github.com/clinvia/clinica-server/db"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
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

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.User{}:            "User",
		&models.Doctor{}:          "Doctor",
		&models.AppointmentType{}: "AppointmentType",
		&models.Schedule{}:        "Schedule",
		&models.Appointment{}:     "Appointment",
		&models.Invoice{}:         "Invoice",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	// Partial unique index backing the one-active-appointment-per-patient
	// invariant under concurrent bookings across server processes.
	if DB.Dialector.Name() == "postgres" {
		if err := DB.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_appointment_per_patient
			ON appointments (patient_id)
			WHERE status IN ('paid', 'in_progress') AND active AND deleted_at IS NULL`).Error; err != nil {
			return fmt.Errorf("error creating active-appointment index: %w", err)
		}
		log.Println("Active-appointment index created/verified")
	}

	log.Println("All migrations completed successfully")
	return nil
}

func startServer() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()
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

func runDatabaseClear() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer func() {
		sqlDB, _ := DB.DB()
		sqlDB.Close()
		log.Println("Database connection closed")
	}()

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		log.Println("Database clearing cancelled.")
		return
	}

	tables := []interface{}{
		&models.Invoice{},
		&models.Appointment{},
		&models.Schedule{},
		&models.AppointmentType{},
		&models.Doctor{},
		&models.User{},
	}

	log.Println("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			log.Printf("Warning dropping table %T: %v", table, err)
		} else {
			log.Printf("Table %T dropped", table)
		}
	}

	log.Println("Database cleared successfully")
}
