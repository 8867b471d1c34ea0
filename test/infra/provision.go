package infra

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// ErrNoDatabase means no DSN was given, Docker is unavailable and no local
// Postgres answered. Stress runs skip on it.
var ErrNoDatabase = errors.New("infra: no database available")

// Database is a Postgres the stress test can use. Shared databases get an
// isolated schema per run; fresh ones are used as is.
type Database struct {
	DSN       string
	Shared    bool
	container *PGContainer
}

// Provision picks a database in order of preference: an explicit DSN,
// STRESS_TEST_PG_DSN, a throwaway container, a local Postgres.
func Provision(ctx context.Context, dsn string) (*Database, error) {
	if dsn == "" {
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
	}
	if dsn != "" {
		return &Database{DSN: dsn, Shared: true}, nil
	}
	if dockerAvailable(ctx) {
		c, dsn, err := StartPostgres16(ctx)
		if err != nil {
			return nil, err
		}
		return &Database{DSN: dsn, container: c}, nil
	}
	dsn, err := InitLocalDatabase(ctx)
	if err != nil {
		return nil, errors.Join(ErrNoDatabase, err)
	}
	return &Database{DSN: dsn}, nil
}

// Close terminates the container, if one was started.
func (d *Database) Close(ctx context.Context) error {
	return d.container.Terminate(ctx)
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
