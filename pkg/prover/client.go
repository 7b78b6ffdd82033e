// Copyright 2025 Worldtree Labs
//
// HTTP client for the merkle tree batcher (mtb) proving service.

package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

// The endpoint used for proving operations.
const proveEndpoint = "prove"

var proveRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "coordinator_prover_request_duration_seconds",
	Help:    "Duration of requests to the proving service, by outcome.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
}, []string{"outcome"})

// Options configures the connection to one proving service instance.
type Options struct {
	// MtbProverURL is the base URL of the semaphore-mtb proving service.
	MtbProverURL string

	// MtbProverTimeoutSecs bounds both connection establishment and the
	// overall request.
	MtbProverTimeoutSecs uint64

	// BatchSize is the batch size the remote prover was set up with. It must
	// match the deployed prover.
	BatchSize int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MtbProverURL:         "http://localhost:3001",
		MtbProverTimeoutSecs: 30,
		BatchSize:            50,
	}
}

// Prover is a client for one proving service instance handling one fixed
// batch size. It is immutable after construction and safe for concurrent use.
type Prover struct {
	targetURL *url.URL
	client    *http.Client
	batchSize int
}

// NewProver constructs a prover client from its options.
func NewProver(options Options) (*Prover, error) {
	targetURL, err := url.Parse(options.MtbProverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prover URL %q: %w", options.MtbProverURL, err)
	}
	if options.BatchSize <= 0 {
		return nil, fmt.Errorf("prover batch size must be positive, got %d", options.BatchSize)
	}

	timeout := time.Duration(options.MtbProverTimeoutSecs) * time.Second
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: timeout}).DialContext,
		},
	}

	return &Prover{
		targetURL: targetURL,
		client:    client,
		batchSize: options.BatchSize,
	}, nil
}

// BatchSize returns the batch size the remote prover handles.
func (p *Prover) BatchSize() int {
	return p.batchSize
}

// GenerateProof asks the proving service for an insertion proof.
//
// startIndex is the leaf index at which the insertions started, preRoot and
// postRoot are the tree roots before and after, and identities are the
// insertions in tree order. The batch length must equal the prover's batch
// size; retries are the caller's policy.
func (p *Prover) GenerateProof(ctx context.Context, startIndex uint32, preRoot, postRoot *big.Int, identities []Identity) (*Proof, error) {
	if len(identities) != p.batchSize {
		return nil, ErrBatchSizeMismatch
	}

	identityCommitments := make([]*big.Int, len(identities))
	merkleProofs := make([][]*big.Int, len(identities))
	for i, id := range identities {
		identityCommitments[i] = id.Commitment
		merkleProofs[i] = id.MerkleProof
	}

	input := ProofInput{
		InputHash:           ComputeInputHash(startIndex, preRoot, postRoot, identityCommitments),
		StartIndex:          startIndex,
		PreRoot:             preRoot,
		PostRoot:            postRoot,
		IdentityCommitments: identityCommitments,
		MerkleProofs:        merkleProofs,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode proof input: %w", err)
	}

	endpoint := p.targetURL.JoinPath(proveEndpoint)
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build prove request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	logging.Logger().Debug().
		Uint32("startIndex", startIndex).
		Int("batchSize", p.batchSize).
		Str("prover", p.targetURL.String()).
		Msg("requesting insertion proof")

	start := time.Now()
	response, err := p.client.Do(request)
	if err != nil {
		proveRequestDuration.WithLabelValues("transport_error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("prove request failed: %w", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		proveRequestDuration.WithLabelValues("transport_error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("failed to read prover response: %w", err)
	}

	proof, err := parseProveResponse(payload)
	if err != nil {
		proveRequestDuration.WithLabelValues("rejected").Observe(time.Since(start).Seconds())
		return nil, err
	}
	proveRequestDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())
	return proof, nil
}

// parseProveResponse decodes the prover's untagged response: a proof on
// success, {code, message} on failure. Anything else is a protocol error.
func parseProveResponse(payload []byte) (*Proof, error) {
	var proof Proof
	proofErr := json.Unmarshal(payload, &proof)
	if proofErr == nil {
		return &proof, nil
	}

	var rejection RejectionError
	if err := json.Unmarshal(payload, &rejection); err == nil && rejection.Code != "" {
		return nil, &rejection
	}

	return nil, fmt.Errorf("%w: %v", ErrProverProtocol, proofErr)
}
