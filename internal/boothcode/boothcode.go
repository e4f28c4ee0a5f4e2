// Package boothcode generates the short codes a booth uses to sign in.
package boothcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"
)

var pattern = regexp.MustCompile(`^[A-Z]{4}-[0-9]{4}$`)

// Generate returns a code of the form AAAA-0000. Each character is drawn
// uniformly from its alphabet.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(9)
	for i := 0; i < 4; i++ {
		c, err := pick(letters)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	b.WriteByte('-')
	for i := 0; i < 4; i++ {
		c, err := pick(digits)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("generate booth code: %w", err)
	}
	return alphabet[n.Int64()], nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func Valid(code string) bool {
	return pattern.MatchString(code)
}
