package redemption

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
)

// CodeFunc produces a candidate redemption code for a partner.
type CodeFunc func(partnerName string) (string, error)

// NewCode returns PREFIX-XXXXXXXX where PREFIX is the first two letters of the
// partner name and the suffix is drawn from crypto/rand.
func NewCode(partnerName string) (string, error) {
	var b strings.Builder
	b.WriteString(partnerPrefix(partnerName))
	b.WriteByte('-')
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate redemption code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func partnerPrefix(partnerName string) string {
	prefix := make([]rune, 0, 2)
	for _, r := range partnerName {
		if len(prefix) == 2 {
			break
		}
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			prefix = append(prefix, unicode.ToUpper(r))
		}
	}
	for len(prefix) < 2 {
		prefix = append(prefix, 'X')
	}
	return string(prefix)
}
