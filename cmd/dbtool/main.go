package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/retrotrack/backend/internal/config"
	"github.com/retrotrack/backend/internal/db"
)

const usage = "usage: dbtool up|down|version"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cmd := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	mg, closeDB, err := migrator(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open db")
	}
	defer closeDB()

	switch cmd {
	case "up":
		log.Info().Str("driver", cfg.DBDriver).Msg("applying migrations")
		err = mg.Up()
	case "down":
		log.Info().Str("driver", cfg.DBDriver).Msg("rolling back one migration")
		err = mg.Down()
	case "version":
		v, dirty, verr := mg.Version()
		if verr == nil {
			fmt.Printf("version=%d dirty=%t\n", v, dirty)
		}
		err = verr
	default:
		fmt.Fprintln(os.Stderr, usage)
		closeDB()
		os.Exit(2)
	}
	if err != nil {
		closeDB()
		log.Fatal().Err(err).Str("command", cmd).Msg("dbtool failed")
	}
}

func migrator(ctx context.Context, cfg config.Config) (*db.Migrator, func(), error) {
	if cfg.DBDriver == "sqlite" {
		s, err := db.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		mg, err := s.Migrator()
		if err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		return mg, closeAll(mg, s), nil
	}
	s, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	mg, err := s.Migrator()
	if err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return mg, closeAll(mg, s), nil
}

// closeAll releases the migrator before the store; the postgres pool waits
// for the connection the migrator holds. It is safe to call more than once.
func closeAll(mg *db.Migrator, store io.Closer) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := mg.Close(); err != nil {
				log.Warn().Err(err).Msg("close migrator")
			}
			_ = store.Close()
		})
	}
}
