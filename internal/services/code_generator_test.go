package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
)

var codePattern = regexp.MustCompile(`^[A-Z]{3}-\d{3}$`)

func TestGenerateCode(t *testing.T) {
	ctx := context.Background()
	neverExists := func(ctx context.Context, cod string) (bool, error) { return false, nil }

	t.Run("format", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			cod, err := GenerateCode(ctx, neverExists)
			if err != nil {
				t.Fatalf("GenerateCode() error = %v", err)
			}
			if !codePattern.MatchString(cod) {
				t.Fatalf("GenerateCode() = %q, want AAA-123 shape", cod)
			}
		}
	})

	t.Run("retries taken codes", func(t *testing.T) {
		calls := 0
		exists := func(ctx context.Context, cod string) (bool, error) {
			calls++
			return calls <= 3, nil
		}

		cod, err := GenerateCode(ctx, exists)
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		if !codePattern.MatchString(cod) {
			t.Errorf("GenerateCode() = %q, want AAA-123 shape", cod)
		}
		if calls != 4 {
			t.Errorf("exists called %d times, want 4", calls)
		}
	})

	t.Run("propagates exists errors", func(t *testing.T) {
		wantErr := errors.New("db down")
		exists := func(ctx context.Context, cod string) (bool, error) { return false, wantErr }

		if _, err := GenerateCode(ctx, exists); !errors.Is(err, wantErr) {
			t.Errorf("GenerateCode() error = %v, want %v", err, wantErr)
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		allTaken := func(ctx context.Context, cod string) (bool, error) { return true, nil }
		if _, err := GenerateCode(cancelled, allTaken); !errors.Is(err, context.Canceled) {
			t.Errorf("GenerateCode() error = %v, want context.Canceled", err)
		}
	})
}
