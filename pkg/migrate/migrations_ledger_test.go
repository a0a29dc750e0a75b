package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmailDeliveriesMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_email_deliveries.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no email_deliveries migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS email_deliveries",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (attempts >= 0)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_email_deliveries_dedupe_key",
		"DROP TABLE IF EXISTS email_deliveries",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationKeepsFeeWithinAmount(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS payments",
		"CHECK (application_fee_cents <= amount_cents)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_stripe_intent_id",
		"DROP TABLE IF EXISTS payments",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
