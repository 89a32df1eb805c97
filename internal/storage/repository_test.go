package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"otakuwallet/internal/core"
	"otakuwallet/internal/storage"
	"otakuwallet/internal/storage/storetest"
)

func newTestRepository(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "wallet.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return repo
}

func TestSQLiteRepositoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock storage.Clock) storage.ExpenseStore {
		repo := newTestRepository(t)
		repo.SetClock(clock)
		return repo
	})
}

func TestSQLiteRepositoryReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallet.db")
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e, _ := core.NewExpense("alice", core.ExpenseInput{
		Title:              "블루레이",
		Amount:             45000,
		Category:           core.Streaming,
		SatisfactionRating: 5,
		PurchaseDate:       core.NewDate(2024, 11, 30),
	})
	saved, err := repo.Insert(context.Background(), e)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	repo.Close()

	// Migrations must be idempotent on an existing database.
	repo, err = storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	got, err := repo.GetByID(context.Background(), "alice", saved.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "블루레이" || got.DisplayAmount != 0 || !got.IsSatisfied {
		t.Fatalf("got %+v", got)
	}
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
