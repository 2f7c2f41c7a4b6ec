package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// DefaultSignatureMaxAge bounds how old a signed webhook may be before it is
// rejected as a possible replay.
const DefaultSignatureMaxAge = 5 * time.Minute

// VerifyHMACSignature validates a shared-secret webhook signature of the
// form HMAC-SHA256(secret, timestamp + "." + payload), the scheme used by
// CardLink and most HMAC-signing processors. Timestamp binding prevents
// replay; comparison is constant-time.
func VerifyHMACSignature(secret string, payload []byte, signature, timestamp string, maxAge time.Duration) error {
	if secret == "" {
		return fmt.Errorf("%w: verification secret is empty", ErrInvalidSignature)
	}
	if signature == "" {
		return fmt.Errorf("%w: signature header missing", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp header", ErrInvalidSignature)
	}

	if maxAge > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age > maxAge {
			return fmt.Errorf("%w: signature timestamp too old (%v)", ErrInvalidSignature, age)
		}
		// Allow modest clock skew but reject far-future timestamps
		if age < -time.Minute {
			return fmt.Errorf("%w: signature timestamp in the future", ErrInvalidSignature)
		}
	}

	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", ts, payload)
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}
	return nil
}

// SignHMACPayload produces the signature and timestamp headers for a
// payload. Used by tests and by provider simulators.
func SignHMACPayload(secret string, payload []byte, at time.Time) (signature, timestamp string) {
	ts := at.Unix()
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.%s", ts, payload)
	return hex.EncodeToString(h.Sum(nil)), strconv.FormatInt(ts, 10)
}
