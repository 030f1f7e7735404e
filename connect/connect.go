// Package connect helps test suites reach PostgreSQL through the proxy.
//
// Point a client at the proxy's listen endpoint in one call:
//
//	pool, err := connect.Pool(ctx, proxyEndpoint, connect.Options{
//		User: "app", Database: "orders",
//	})
//	defer pool.Close()
//
// Wait lets a suite start the proxy and the database in either order:
//
//	if err := connect.Wait(ctx, upstream); err != nil { ... }
package connect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" database/sql driver

	"github.com/matgreaves/pgjinx/spec"
)

// Options carry what a connection string needs beyond the endpoint
// address.
type Options struct {
	User     string
	Password string
	Database string

	// Params are extra connection parameters ("connect_timeout",
	// "application_name", ...). sslmode is always disable; the proxy
	// speaks cleartext.
	Params map[string]string
}

// DSN builds a Postgres connection URL for the endpoint.
func DSN(ep spec.Endpoint, opts Options) string {
	q := url.Values{"sslmode": []string{"disable"}}
	for k, v := range opts.Params {
		q.Set(k, v)
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s",
		opts.User, opts.Password, ep.Addr(), opts.Database, q.Encode())
}

// Pool returns a pgx connection pool pointed at the endpoint.
func Pool(ctx context.Context, ep spec.Endpoint, opts Options) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, DSN(ep, opts))
}

// DB returns a *sql.DB backed by the pgx driver.
func DB(ep spec.Endpoint, opts Options) (*sql.DB, error) {
	return sql.Open("pgx", DSN(ep, opts))
}
