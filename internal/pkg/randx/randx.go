/*
Package randx provides functions for generating cryptographically secure random
suffixes and unique identifiers.

It generates message IDs (millisecond timestamp plus a random Base62 suffix) and
server-side user IDs (UUID v4).
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// Base62Len is the total number of characters in the Base62 character set (62).
	Base62Len = int64(len(Base62Chars))

	// MessageIDSuffixLength is the number of random characters appended to a
	// message ID. A bare millisecond timestamp can collide under rapid sends;
	// the suffix makes the ID usable as an idempotency key.
	MessageIDSuffixLength = 4
)

// base62 returns n random characters from the Base62 set using crypto/rand.
func base62(n int) (string, error) {
	result := make([]byte, n)

	for i := 0; i < n; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(Base62Len))
		if err != nil {
			return "", fmt.Errorf("failed to generate random base62 character: %v", err)
		}
		result[i] = Base62Chars[num.Int64()]
	}

	return string(result), nil
}

// MessageID generates a sortable, collision-resistant message identifier:
// the current Unix millisecond timestamp followed by a random Base62 suffix.
// IDs from the same sender are monotonically-increasing-enough for display order.
func MessageID() string {
	suffix, err := base62(MessageIDSuffixLength)
	if err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to the
		// bare timestamp rather than refusing to send.
		return fmt.Sprintf("%d", time.Now().UnixMilli())
	}

	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// UserID generates a UUID v4 string used by the server to identify a connection.
func UserID() string {
	return uuid.New().String()
}
