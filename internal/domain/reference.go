package domain

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	OrderNumberPrefix   = "ORD"
	BookingNumberPrefix = "BKG"
	referenceSuffixLen  = 6
)

// NewReferenceNumber builds an externally displayable number: prefix, a sortable UTC
// timestamp, and a short random suffix drawn from entropy. No central sequence is needed.
func NewReferenceNumber(prefix string, now time.Time, entropy io.Reader) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = OrderNumberPrefix
	}
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", fmt.Errorf("domain: reference number entropy: %w", err)
	}
	random := id.String()[10:]
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102150405"), random[len(random)-referenceSuffixLen:]), nil
}
