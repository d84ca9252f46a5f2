package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/unionhall/hall-app/conf"
	"github.com/unionhall/hall-app/hall/utils"
)

// Variable substitution to support testing.
var LogFatal = log.Fatal

func GetDbConnection() *sql.DB {
	databaseURL := conf.GetEnv("DATABASE_URL")
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		LogFatal(err)
	}

	db.SetMaxOpenConns(utils.GetEnvInt("HALL_DB_MAX_OPEN_CONNS", 40))
	db.SetMaxIdleConns(utils.GetEnvInt("HALL_DB_MAX_IDLE_CONNS", 20))
	db.SetConnMaxLifetime(time.Duration(utils.GetEnvInt("HALL_DB_CONN_MAX_LIFETIME_MIN", 5)) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(utils.GetEnvInt("HALL_DB_CONN_MAX_IDLE_TIME_MIN", 30)) * time.Minute)

	if pingErr := db.Ping(); pingErr != nil {
		LogFatal(pingErr)
	}
	return db
}
