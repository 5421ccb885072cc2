package store

import (
	"testing"
	"time"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

func TestSortNewestFirstBreaksTiesOnID(t *testing.T) {
	same := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	txns := []domain.CreditTransaction{
		{ID: "1b", CreatedAt: same},
		{ID: "0a", CreatedAt: same.Add(-time.Second)},
		{ID: "3d", CreatedAt: same},
		{ID: "2c", CreatedAt: same},
		{ID: "9z", CreatedAt: same.Add(time.Second)},
	}

	for run := 0; run < 5; run++ {
		rows := append([]domain.CreditTransaction(nil), txns...)
		sortNewestFirst(rows)

		want := []string{"9z", "3d", "2c", "1b", "0a"}
		for i, id := range want {
			if rows[i].ID != id {
				t.Fatalf("position %d: expected %s, got %s (order %v)", i, id, rows[i].ID, rows)
			}
		}
	}
}
