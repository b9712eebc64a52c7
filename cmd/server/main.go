package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/diewo77/cave-gestion/internal/auth"
	"github.com/diewo77/cave-gestion/internal/config"
	"github.com/diewo77/cave-gestion/internal/db"
	"github.com/diewo77/cave-gestion/internal/logger"
	"github.com/diewo77/cave-gestion/internal/models"
	"github.com/diewo77/cave-gestion/internal/server"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logger setup")
	}

	dbConn, err := db.ConnectAndMigrate(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("erreur connexion base de données")
	}
	if *migrateOnlyFlag {
		log.Info().Msg("migrations terminées")
		return
	}

	// Sessions stay valid only while the account exists and is active.
	auth.SetUserVerifier(func(ctx context.Context, uid uint) bool {
		var u models.User
		if err := dbConn.WithContext(ctx).First(&u, uid).Error; err != nil {
			return false
		}
		return u.Actif
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.New(dbConn),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("env", cfg.Env).Str("addr", srv.Addr).Msg("serveur démarré")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("arrêt demandé")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("erreur pendant l'arrêt")
	}
	closeDB(dbConn)
	log.Info().Msg("serveur arrêté")
}

func closeDB(g *gorm.DB) {
	sqlDB, err := g.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
