package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Submitter is the opaque sign/broadcast/confirm boundary. It takes the
// serialized transaction the router built and yields the confirmed
// transaction hash. Real broadcast lives outside this core.
type Submitter interface {
	Submit(ctx context.Context, tx []byte) (string, error)
}

// SimSubmitter confirms instantly with a synthetic hash derived from the
// transaction payload. It stands in for the on-chain leg on devnet and in
// tests.
type SimSubmitter struct{}

func (SimSubmitter) Submit(_ context.Context, tx []byte) (string, error) {
	sum := sha256.Sum256(append(tx, strconv.FormatInt(time.Now().UnixNano(), 10)...))
	return hex.EncodeToString(sum[:]), nil
}

var _ Submitter = SimSubmitter{}
