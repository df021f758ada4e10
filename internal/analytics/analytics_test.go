package analytics

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(WithDSN(filepath.Join(t.TempDir(), "analytics.db")))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSummarizeEmptyStore(t *testing.T) {
	store := newTestStore(t)

	sum, err := store.Summarize(context.Background())
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.TotalInteractions != 0 || sum.UniqueUsers != 0 || sum.InteractionsToday != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
	if len(sum.DailyTrend) != 0 || len(sum.PeakHours) != 0 || len(sum.TopUsers) != 0 {
		t.Errorf("empty summary has rows: %+v", sum)
	}
}

func TestLogInteractionAndSummarize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	interactions := map[string]int{
		"+628111": 3,
		"+628222": 2,
		"+628333": 1,
	}
	for user, n := range interactions {
		for i := 0; i < n; i++ {
			if err := store.LogInteraction(ctx, user); err != nil {
				t.Fatalf("LogInteraction(%s) error = %v", user, err)
			}
		}
	}

	sum, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if sum.TotalInteractions != 6 {
		t.Errorf("TotalInteractions = %d, want 6", sum.TotalInteractions)
	}
	if sum.UniqueUsers != 3 {
		t.Errorf("UniqueUsers = %d, want 3", sum.UniqueUsers)
	}
	if sum.InteractionsToday != 6 {
		t.Errorf("InteractionsToday = %d, want 6", sum.InteractionsToday)
	}
	if len(sum.DailyTrend) != 1 || sum.DailyTrend[0].Count != 6 {
		t.Errorf("DailyTrend = %v", sum.DailyTrend)
	}
	if len(sum.TopUsers) == 0 || sum.TopUsers[0].UserID != "+628111" || sum.TopUsers[0].Count != 3 {
		t.Errorf("TopUsers = %v", sum.TopUsers)
	}

	var total int
	for _, h := range sum.PeakHours {
		total += h.Count
	}
	if total != 6 {
		t.Errorf("PeakHours counts sum to %d, want 6", total)
	}
}

func TestTopUsersLimitedToFive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	users := []string{"+1", "+2", "+3", "+4", "+5", "+6", "+7"}
	for _, u := range users {
		if err := store.LogInteraction(ctx, u); err != nil {
			t.Fatalf("LogInteraction(%s) error = %v", u, err)
		}
	}

	sum, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if len(sum.TopUsers) != 5 {
		t.Errorf("TopUsers len = %d, want 5", len(sum.TopUsers))
	}
}
