package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	stressDatabase = "frontdesk_stress"
	stressRole     = "frontdesk_stress"
	stressPassword = "frontdesk"
)

// localAddr is the host:port of a locally installed Postgres, overridable with
// PGHOST/PGPORT.
func localAddr() string {
	host, port := os.Getenv("PGHOST"), os.Getenv("PGPORT")
	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "5432"
	}
	return net.JoinHostPort(host, port)
}

// InitLocalDatabase recreates the stress database on a local Postgres and returns
// a DSN owned by a dedicated login role. It is the fallback when Docker is absent.
func InitLocalDatabase(ctx context.Context) (string, error) {
	addr := localAddr()
	if !isPostgresRunning(ctx, addr) {
		return "", errors.New("infra: no postgres listening on " + addr)
	}

	user := os.Getenv("USER")
	candidates := []string{
		fmt.Sprintf("postgres://postgres@%s/postgres?sslmode=disable", addr),
		fmt.Sprintf("postgres://postgres:postgres@%s/postgres?sslmode=disable", addr),
		fmt.Sprintf("postgres://%s@%s/postgres?sslmode=disable", user, addr),
		fmt.Sprintf("postgres://%s:postgres@%s/postgres?sslmode=disable", user, addr),
	}

	var (
		admin *pgx.Conn
		err   error
	)
	for _, dsn := range candidates {
		if admin, err = pgx.Connect(ctx, dsn); err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("infra: connect as admin: %w", err)
	}
	defer admin.Close(ctx)

	if err := ensureRole(ctx, admin); err != nil {
		return "", err
	}

	dbIdent := pgx.Identifier{stressDatabase}.Sanitize()
	roleIdent := pgx.Identifier{stressRole}.Sanitize()
	_, _ = admin.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`, stressDatabase)
	stmts := []string{
		"DROP DATABASE IF EXISTS " + dbIdent,
		"CREATE DATABASE " + dbIdent + " OWNER " + roleIdent,
		"GRANT ALL PRIVILEGES ON DATABASE " + dbIdent + " TO " + roleIdent,
	}
	for _, stmt := range stmts {
		if _, err := admin.Exec(ctx, stmt); err != nil {
			return "", fmt.Errorf("infra: %s: %w", stmt, err)
		}
	}

	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", stressRole, stressPassword, addr, stressDatabase), nil
}

func ensureRole(ctx context.Context, admin *pgx.Conn) error {
	var exists bool
	if err := admin.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, stressRole).Scan(&exists); err != nil {
		return fmt.Errorf("infra: lookup role: %w", err)
	}
	if exists {
		return nil
	}
	// CREATE ROLE takes no bind parameters
	stmt := fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD '%s'", pgx.Identifier{stressRole}.Sanitize(), stressPassword)
	if _, err := admin.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("infra: create role: %w", err)
	}
	return nil
}

func isPostgresRunning(ctx context.Context, addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, err := exec.LookPath("pg_isready"); err == nil {
		return exec.CommandContext(ctx, "pg_isready", "-h", host, "-p", port).Run() == nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
