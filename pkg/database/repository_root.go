// Copyright 2025 Worldtree Labs
//
// Root history repository. Rows are keyed by the 32-byte big-endian root
// value; the coordinator records a root when its batch is submitted and marks
// it once cross-chain finalization has been observed.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
)

// RootStatus enumerates the lifecycle of a recorded root.
type RootStatus string

const (
	RootStatusPending RootStatus = "pending"
	RootStatusMined   RootStatus = "mined"
)

// RootRepository stores the mined-root markers.
type RootRepository struct {
	client *Client
}

// NewRootRepository binds the repository to a client.
func NewRootRepository(client *Client) *RootRepository {
	return &RootRepository{client: client}
}

// InsertPendingRoot records a root whose batch transaction has been
// submitted. Re-inserting a known root is a no-op.
func (r *RootRepository) InsertPendingRoot(ctx context.Context, root *big.Int) error {
	_, err := r.client.ExecContext(ctx,
		`INSERT INTO root_history (root, status) VALUES ($1, $2)
		 ON CONFLICT (root) DO NOTHING`,
		rootKey(root), RootStatusPending)
	if err != nil {
		return fmt.Errorf("failed to insert pending root: %w", err)
	}
	return nil
}

// MarkRootAsMined marks a recorded root as finalized.
func (r *RootRepository) MarkRootAsMined(ctx context.Context, root *big.Int) error {
	result, err := r.client.ExecContext(ctx,
		`UPDATE root_history SET status = $2, mined_at = now() WHERE root = $1`,
		rootKey(root), RootStatusMined)
	if err != nil {
		return fmt.Errorf("failed to mark root as mined: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrRootNotFound
	}
	return nil
}

// Status returns the recorded status of a root.
func (r *RootRepository) Status(ctx context.Context, root *big.Int) (RootStatus, error) {
	var status RootStatus
	err := r.client.QueryRowContext(ctx,
		`SELECT status FROM root_history WHERE root = $1`,
		rootKey(root)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRootNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read root status: %w", err)
	}
	return status, nil
}

// rootKey returns the fixed 32-byte big-endian key for a root.
func rootKey(root *big.Int) []byte {
	return root.FillBytes(make([]byte, 32))
}
