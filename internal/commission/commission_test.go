package commission

import (
	"testing"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/haleycommerce/storefront-backend/pkg/errors"
)

func TestComputeTenPercentSplit(t *testing.T) {
	rate := decimal.NewFromInt(10)

	got, err := Compute(4000, rate)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.PlatformFeeCents != 400 {
		t.Fatalf("expected fee 400, got %d", got.PlatformFeeCents)
	}
	if got.VendorNetCents != 3600 {
		t.Fatalf("expected net 3600, got %d", got.VendorNetCents)
	}

	got, err = Compute(6000, rate)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.PlatformFeeCents != 600 {
		t.Fatalf("expected fee 600, got %d", got.PlatformFeeCents)
	}
	if got.VendorNetCents != 5400 {
		t.Fatalf("expected net 5400, got %d", got.VendorNetCents)
	}
}

func TestComputeRoundsHalfUp(t *testing.T) {
	// 125 * 2.5% = 3.125 cents, rounds up to 3
	got, err := Compute(125, decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.PlatformFeeCents != 3 {
		t.Fatalf("expected fee 3, got %d", got.PlatformFeeCents)
	}

	// 150 * 2.5% = 3.75 cents, rounds up to 4
	got, err = Compute(150, decimal.RequireFromString("2.5"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.PlatformFeeCents != 4 {
		t.Fatalf("expected fee 4, got %d", got.PlatformFeeCents)
	}

	// 100 * 0.5% = 0.5 cents, half rounds up to 1
	got, err = Compute(100, decimal.RequireFromString("0.5"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.PlatformFeeCents != 1 {
		t.Fatalf("expected fee 1, got %d", got.PlatformFeeCents)
	}
}

func TestComputePartsAlwaysSumToAmount(t *testing.T) {
	amounts := []int64{0, 1, 99, 100, 101, 4000, 6000, 123456789}
	rates := []string{"0", "0.5", "2.5", "10", "12.75", "33.33", "100"}

	for _, amount := range amounts {
		for _, raw := range rates {
			rate := decimal.RequireFromString(raw)
			got, err := Compute(amount, rate)
			if err != nil {
				t.Fatalf("amount=%d rate=%s: unexpected error %v", amount, raw, err)
			}
			if got.PlatformFeeCents < 0 {
				t.Fatalf("amount=%d rate=%s: negative fee %d", amount, raw, got.PlatformFeeCents)
			}
			if got.PlatformFeeCents+got.VendorNetCents != amount {
				t.Fatalf("amount=%d rate=%s: fee %d + net %d != amount", amount, raw, got.PlatformFeeCents, got.VendorNetCents)
			}
		}
	}
}

func TestComputeRejectsInvalidInputs(t *testing.T) {
	if _, err := Compute(-1, decimal.NewFromInt(10)); err == nil {
		t.Fatal("expected error for negative amount")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := Compute(100, decimal.NewFromInt(-1)); err == nil {
		t.Fatal("expected error for negative rate")
	}
	if _, err := Compute(100, decimal.NewFromInt(101)); err == nil {
		t.Fatal("expected error for rate above 100")
	}
}

func TestRecomputeFloorsAtZero(t *testing.T) {
	if got := Recompute(1000, 100); got != 900 {
		t.Fatalf("expected 900, got %d", got)
	}
	if got := Recompute(100, 200); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
