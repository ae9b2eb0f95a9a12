package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Astemirdum/lending-service/internal/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	idempotencyTTL         = 24 * time.Hour
	idempotencyMaxAttempts = 5
)

// DeriveOperationKey builds a deterministic key from the operation type and
// its stable parameters, for callers that do not supply a token.
func DeriveOperationKey(opType string, params ...string) string {
	h := sha256.New()
	h.Write([]byte(opType))
	for _, p := range params {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// withIdempotency runs op at most once per key. The first caller claims the
// key, executes op and stores its JSON result; every retry gets the stored
// result decoded into out instead of re-executing side effects. A concurrent
// duplicate waits briefly for the winner's result rather than running op a
// second time.
func (s *Service) withIdempotency(ctx context.Context, key string, out any, op func(ctx context.Context) (any, error)) error {
	for attempt := 0; attempt < idempotencyMaxAttempts; attempt++ {
		rec, claimed, err := s.repo.ClaimIdempotencyKey(ctx, key, idempotencyTTL)
		if err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// claim row vanished between insert-conflict and read
				// (expired or released), take another shot
				continue
			}
			return err
		}

		if claimed {
			res, opErr := op(ctx)
			if opErr != nil {
				if relErr := s.repo.ReleaseIdempotencyKey(ctx, key); relErr != nil {
					s.log.Error("idempotency release", zap.Error(relErr), zap.String("key", key))
				}
				return opErr
			}
			data, err := json.Marshal(res)
			if err != nil {
				return err
			}
			if err := s.repo.StoreIdempotencyResult(ctx, key, data); err != nil {
				s.log.Error("idempotency store", zap.Error(err), zap.String("key", key))
			}
			return json.Unmarshal(data, out)
		}

		if len(rec.Result) > 0 {
			return json.Unmarshal(rec.Result, out)
		}

		// the winner is still in flight, back off and re-read
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return errors.Wrap(errs.ErrDuplicateRequest, "operation with this key is still in progress")
}
