package db

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLeaseHeld indicates another session already holds the lease for the
// same scope.
var ErrLeaseHeld = errors.New("lease already held for scope")

// leaseNamespace separates poll leases from any other advisory-lock user
// of the same database.
const leaseNamespace = 0x68696500 // "hie"

// Lease is a per-scope mutual exclusion backed by a Postgres session-level
// advisory lock. The lock lives on a dedicated connection: it is released
// by Release, or automatically when the session dies, so a crashed holder
// never blocks the scope forever.
type Lease struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireLease tries to take the advisory lock for scope without waiting.
// Returns ErrLeaseHeld when another session holds it.
func AcquireLease(ctx context.Context, pool *pgxpool.Pool, scope string) (*Lease, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for lease: %w", err)
	}

	key := leaseKey(scope)
	var got bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&got); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !got {
		conn.Release()
		return nil, ErrLeaseHeld
	}

	return &Lease{conn: conn, key: key}, nil
}

// Release unlocks the advisory lock and returns the connection to the pool.
// Safe to call once; subsequent calls are no-ops.
func (l *Lease) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key)
	l.conn.Release()
	l.conn = nil
}

// leaseKey packs the namespace into the high 32 bits and the scope hash
// into the low 32, so poll leases can never collide with another advisory
// lock user's key space.
func leaseKey(scope string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	return int64(leaseNamespace)<<32 | int64(h.Sum32())
}
