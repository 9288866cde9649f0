package migrations

import (
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

// Run applies all pending migrations from ./migrations.
func Run() {
	db, err := sql.Open("postgres", os.Getenv("POSTGRES_CONN"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal().Err(err).Msg("failed to set dialect")
	}

	migrationDir := "./migrations"

	log.Info().Str("dir", migrationDir).Msg("running migrations")
	if err := goose.Up(db, migrationDir); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
}
