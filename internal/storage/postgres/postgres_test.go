package postgres

import (
	"context"
	"os"
	"testing"

	"otakuwallet/internal/storage"
	"otakuwallet/internal/storage/storetest"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/wallet":   "pgx5://u:p@localhost:5432/wallet",
		"postgresql://u:p@localhost:5432/wallet": "pgx5://u:p@localhost:5432/wallet",
		"pgx5://localhost/wallet":                "pgx5://localhost/wallet",
	}
	for in, want := range cases {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

// Requires a disposable database; every run truncates the expenses table.
func TestStoreContract(t *testing.T) {
	url := os.Getenv("WALLET_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WALLET_TEST_DATABASE_URL not set")
	}
	storetest.Run(t, func(t *testing.T, clock storage.Clock) storage.ExpenseStore {
		s, err := New(context.Background(), url)
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if _, err := s.pool.Exec(context.Background(), `TRUNCATE expenses RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		s.SetClock(clock)
		return s
	})
}
