package orders

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/ovenly/backend/pkg/enums"
)

const (
	orderNumberTimeLayout = "0601021504"
	suffixLength          = 4
	// no 0/O or 1/I so numbers read back over the phone
	suffixAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

// NumberGenerator produces customer-facing order numbers.
type NumberGenerator func(productType enums.ProductType, now time.Time) string

// GenerateOrderNumber returns prefix + YYMMDDHHmm (Nairobi time) + a random suffix,
// e.g. C2603011230K7QX.
func GenerateOrderNumber(productType enums.ProductType, now time.Time) string {
	return productType.OrderPrefix() + now.In(nairobi).Format(orderNumberTimeLayout) + randomSuffix(suffixLength)
}

func randomSuffix(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = suffixAlphabet[i%len(suffixAlphabet)]
			continue
		}
		out[i] = suffixAlphabet[idx.Int64()]
	}
	return string(out)
}
