// Copyright 2025 Worldtree Labs
//
// Package prover provides sentinel and structured errors for batch proving.

package prover

import (
	"errors"
	"fmt"
)

var (
	// ErrBatchSizeMismatch is returned when a batch is offered to a prover
	// configured for a different batch size. No request is made in that case.
	ErrBatchSizeMismatch = errors.New("provided batch does not match prover batch size")

	// ErrProverProtocol is returned when the prover's response parses as
	// neither a proof nor a structured error.
	ErrProverProtocol = errors.New("unrecognized prover response payload")
)

// RejectionError is a structured error returned by the proving service.
type RejectionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("prover failure: code = %s, message = %s", e.Code, e.Message)
}

// NoProverForSizeError is returned by the prover map when no prover is
// registered for the requested batch size.
type NoProverForSizeError int

func (e NoProverForSizeError) Error() string {
	return fmt.Sprintf("no available prover for batch size: %d", int(e))
}
