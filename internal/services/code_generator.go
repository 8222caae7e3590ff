package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
)

const codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ExistsFunc reports whether a candidate code is already taken.
type ExistsFunc func(ctx context.Context, cod string) (bool, error)

// GenerateCode produces a unique code in the AAA-123 format: three random
// uppercase letters, a dash, three zero-padded digits. The exists check is
// advisory; the unique constraint on the column stays authoritative and
// callers retry the whole generate+insert on a duplicate-key error.
func GenerateCode(ctx context.Context, exists ExistsFunc) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		cod, err := randomCode()
		if err != nil {
			return "", err
		}

		taken, err := exists(ctx, cod)
		if err != nil {
			return "", fmt.Errorf("code existence check: %w", err)
		}
		if !taken {
			return cod, nil
		}
	}
}

func randomCode() (string, error) {
	letters := make([]byte, 3)
	for i := range letters {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeLetters))))
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		letters[i] = codeLetters[n.Int64()]
	}

	num, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%s-%03d", letters, num.Int64()), nil
}
