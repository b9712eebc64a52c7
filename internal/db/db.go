package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	// Blank imports register the drivers and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/diewo77/cave-gestion/internal/config"
	"github.com/diewo77/cave-gestion/internal/models"
)

// AllModels lists every persisted entity in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Category{},
		&models.Supplier{},
		&models.Subscriber{},
		&models.Product{},
		&models.Invoice{},
		&models.Consumption{},
		&models.Payment{},
		&models.StockMovement{},
		&models.AuditLog{},
	}
}

// ConnectAndMigrate opens the database named by the configuration, runs the
// schema migrations and, when DB_SEED is set, the development seed.
// Postgres is used when DATABASE_DSN is set; otherwise an embedded sqlite
// file at cfg.SQLitePath.
func ConnectAndMigrate(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = gormlogger.Info
	}
	gcfg := &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)}

	var db *gorm.DB
	var err error
	if cfg.DatabaseDSN != "" {
		dsn := NormalizeDSN(cfg.DatabaseDSN)
		log.Info().Str("dsn", MaskDSN(dsn)).Msg("connexion postgres")
		for i := 0; i < 10; i++ {
			db, err = gorm.Open(postgres.Open(dsn), gcfg)
			if err == nil {
				break
			}
			log.Warn().Err(err).Msg("nouvelle tentative de connexion à la base")
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to connect database after retries: %w", err)
		}
	} else {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && dir != "" {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", mkErr)
			}
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("ouverture sqlite")
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if fkErr := db.Exec("PRAGMA foreign_keys = ON").Error; fkErr != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", fkErr)
		}
	}

	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	for _, table := range []string{"users", "subscribers", "products", "invoices"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}

	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		seed(db)
	}
	return db, nil
}

// Migrate applies the schema. With MIGRATIONS=1 the SQL files under
// ./migrations are applied through golang-migrate; otherwise AutoMigrate.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			dsn = "sqlite3://" + cfg.SQLitePath
		} else {
			dsn = NormalizeDSN(dsn)
		}
		if err := runSQLMigrations(dsn); err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		return nil
	}
	for _, m := range AllModels() {
		if migErr := db.AutoMigrate(m); migErr != nil {
			return fmt.Errorf("automigrate %T: %w", m, migErr)
		}
	}
	return nil
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// seed installs the development accounts and the base product categories.
// Every insert is guarded by a lookup so the seed stays idempotent.
func seed(db *gorm.DB) {
	seedUser(db, "admin", "admin123", "Administrateur", models.RoleAdmin, "")
	seedUser(db, "vendeur", "vendeur123", "Vendeur", models.RoleVendeur,
		"abonnes,produits,consommations,factures,paiements")

	baseCategories := []models.Category{
		{Nom: "Vins rouges", Description: "Vins rouges au verre ou à la bouteille"},
		{Nom: "Vins blancs", Description: "Vins blancs au verre ou à la bouteille"},
		{Nom: "Champagnes", Description: "Champagnes et effervescents"},
		{Nom: "Spiritueux", Description: "Whisky, rhum, gin"},
		{Nom: "Softs", Description: "Boissons sans alcool"},
	}
	for _, c := range baseCategories {
		var existing models.Category
		if err := db.Where("nom = ?", c.Nom).First(&existing).Error; err == gorm.ErrRecordNotFound {
			db.Create(&c)
		}
	}
}

func seedUser(db *gorm.DB, username, password, fullName, role, permissions string) {
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err != gorm.ErrRecordNotFound {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("seed: hash du mot de passe")
		return
	}
	db.Create(&models.User{
		Username:    username,
		Password:    string(hash),
		NomComplet:  fullName,
		Role:        role,
		Permissions: permissions,
		Actif:       true,
	})
}
