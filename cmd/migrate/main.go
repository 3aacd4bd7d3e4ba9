package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/NEXESMISSION/KESTI-sub002/internal/storage"
	"github.com/NEXESMISSION/KESTI-sub002/internal/utils"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	databaseURL := config.Database.URL
	if databaseURL == "" {
		databaseURL = config.Database.Path

		dbDir := filepath.Dir(config.Database.Path)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Fatalf("Failed to create database directory: %v", err)
		}
	}

	fmt.Println("Running database migrations...")

	db, err := storage.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Failed to close database: %v", err)
		}
	}()

	applied, total, err := storage.GetMigrationStatus(db.DB)
	if err != nil {
		log.Printf("Warning: Could not get migration status: %v", err)
	} else {
		fmt.Printf("Migrations applied: %d of %d\n", len(applied), total)
		for _, migration := range applied {
			fmt.Printf("  Migration %d applied at %s\n",
				migration.Version,
				migration.AppliedAt.Format("2006-01-02 15:04:05"))
		}
	}

	if err := storage.RunMigrations(db.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	applied, total, err = storage.GetMigrationStatus(db.DB)
	if err != nil {
		log.Printf("Warning: Could not get updated migration status: %v", err)
	} else {
		fmt.Printf("Migrations now applied: %d of %d\n", len(applied), total)
	}

	fmt.Println("Database migrations completed successfully")

	if len(os.Args) > 1 && os.Args[1] == "--verify" {
		fmt.Println("Verifying database schema...")

		if err := db.Ping(); err != nil {
			log.Fatalf("Database health check failed: %v", err)
		}

		fmt.Println("Database verification completed successfully")
	}
}
