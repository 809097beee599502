package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, lexicographically sortable identifier.
func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

const keyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		x, _ := rand.Int(rand.Reader, big.NewInt(int64(len(keyCharset))))
		b[i] = keyCharset[x.Int64()]
	}
	return string(b)
}

// NewAPIKey returns a fresh account API key.
func NewAPIKey() string {
	return fmt.Sprintf("vk_%s", randomString(32))
}

// NewSecret returns a fresh HMAC signing secret.
func NewSecret() string {
	return fmt.Sprintf("whsec_%s", randomString(40))
}
