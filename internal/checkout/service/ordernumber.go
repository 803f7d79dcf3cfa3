package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// newOrderNumber produces numbers like ORD-20260831-A1B2C3. The random
// suffix is short, so uniqueness is ultimately enforced by the database
// constraint and a bounded retry in the caller.
func newOrderNumber(now time.Time) (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate order number suffix: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b))), nil
}
