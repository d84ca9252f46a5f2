package database

import (
	"github.com/bgentry/que-go"
	"github.com/jackc/pgx"
	"github.com/pkg/errors"

	"github.com/unionhall/hall-app/conf"
)

// GetQueuePool returns a pgx pool against the queue database with the
// que statements prepared on every connection. The caller owns Close.
func GetQueuePool() (*pgx.ConnPool, error) {
	queueDatabaseURL := conf.GetEnv("QUEUE_DATABASE_URL")
	pgxcfg, err := pgx.ParseURI(queueDatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse queue database URL")
	}

	pool, err := pgx.NewConnPool(pgx.ConnPoolConfig{
		ConnConfig:   pgxcfg,
		AfterConnect: que.PrepareStatements,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create queue connection pool")
	}

	return pool, nil
}
