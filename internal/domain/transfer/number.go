package transfer

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberPrefix starts every human-facing transfer number
const NumberPrefix = "TRF"

// GenerateNumber returns TRF-YYYYMMDD-XXXXXXXX. Uniqueness per tenant is
// enforced by the store.
func GenerateNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", NumberPrefix, now.UTC().Format("20060102"), suffix)
}
