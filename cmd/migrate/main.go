package main

import (
	"log"
	"os"

	"servicelines-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. AutoMigrate session tables
	log.Printf("Running AutoMigrate for %d table(s)...", len(database.Models()))
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("Error: AutoMigrate failed:", err)
	}

	// 4. Indexes GORM tags cannot express
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_entries_session ON kv_entries (session_id)`).Error; err != nil {
		log.Printf("Warn: Failed to create session index: %v", err)
	}

	log.Println("Migration completed")
}
