package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/carrental-backend/api/responses"
	pkgerrors "github.com/angelmondragon/carrental-backend/pkg/errors"
	"github.com/angelmondragon/carrental-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/carrental-backend/pkg/redis"
)

// IdempotencyHeader carries the client-chosen key for replay-safe writes.
const IdempotencyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the replay cache.
const ReplayedHeader = "Idempotent-Replayed"

const (
	// ReplayTTL covers ordinary creates.
	ReplayTTL = 24 * time.Hour
	// PaymentReplayTTL is longer because a replayed charge moves money.
	PaymentReplayTTL = 7 * 24 * time.Hour

	maxIdempotencyKeyLen = 255
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency makes a write route replay-safe: the first response for a
// (user, path, key) triple is kept for ttl and served again on repeats.
// 5xx responses are not kept so the caller may retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			switch {
			case clientKey == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(clientKey) > maxIdempotencyKeyLen:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintBody(body)
			key := store.IdempotencyKey(strings.Join([]string{userIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

			raw, err := store.Get(ctx, key)
			if err != nil && !errors.Is(err, redis.Nil) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if raw != "" {
				var prior storedResponse
				if err := json.Unmarshal([]byte(raw), &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
					return
				}
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				replay(w, prior)
				return
			}

			capture := &bodyCapture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(storedResponse{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.buf.Bytes(),
				Fingerprint: fingerprint,
			})
			if err == nil {
				_, err = store.SetNX(ctx, key, string(payload), ttl)
			}
			if err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, prior storedResponse) {
	if prior.ContentType != "" {
		w.Header().Set("Content-Type", prior.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(prior.Status)
	_, _ = w.Write(prior.Body)
}

func fingerprintBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type bodyCapture struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (c *bodyCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}
