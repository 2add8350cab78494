package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-match-backend/internal/domain"
)

func TestGetDemand_FoundAndNotFound(t *testing.T) {
	db := newTestDB(t, &domain.Demand{})
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	seedDemand(t, db, "d1", "u1", now, 3)

	got, err := GetDemand(context.Background(), db, "d1")
	if err != nil || got.UserID != "u1" {
		t.Fatalf("GetDemand: got=%+v err=%v", got, err)
	}
	if !got.ExpiresAt.Equal(now.Add(72 * time.Hour)) {
		t.Fatalf("expires_at round-trip: %v", got.ExpiresAt)
	}
	if _, err := GetDemand(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDemandsByUser_NewestFirst(t *testing.T) {
	db := newTestDB(t, &domain.Demand{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seedDemand(t, db, "a", "u1", base, 1)
	seedDemand(t, db, "b", "u1", base.Add(time.Hour), 1)
	seedDemand(t, db, "c", "u2", base, 1)

	got, err := ListDemandsByUser(context.Background(), db, "u1")
	if err != nil {
		t.Fatalf("ListDemandsByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestListLiveDemandsByIDs_FiltersExpiredAndMissing(t *testing.T) {
	db := newTestDB(t, &domain.Demand{})
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	seedDemand(t, db, "live", "u1", now.Add(-time.Hour), 1)
	seedDemand(t, db, "expired", "u1", now.Add(-48*time.Hour), 1)
	// expires exactly at now: not live
	seedDemand(t, db, "edge", "u1", now.Add(-24*time.Hour), 1)

	got, err := ListLiveDemandsByIDs(context.Background(), db, []string{"live", "expired", "edge", "ghost"}, now)
	if err != nil {
		t.Fatalf("ListLiveDemandsByIDs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "live" {
		t.Fatalf("expected only the live demand, got %+v", got)
	}

	out, err := ListLiveDemandsByIDs(context.Background(), db, nil, now)
	if err != nil || out != nil {
		t.Fatalf("empty id list should short-circuit, got %v %v", out, err)
	}
}

func TestListExpiredDemands_Keyset(t *testing.T) {
	db := newTestDB(t, &domain.Demand{})
	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	seedDemand(t, db, "old1", "u1", now.Add(-72*time.Hour), 1)
	seedDemand(t, db, "old2", "u1", now.Add(-96*time.Hour), 1)
	seedDemand(t, db, "old3", "u1", now.Add(-72*time.Hour), 1)
	seedDemand(t, db, "fresh", "u1", now, 1)

	ctx := context.Background()
	all, err := ListExpiredDemands(ctx, db, ExpiryCursor{}, now, 10)
	if err != nil {
		t.Fatalf("ListExpiredDemands: %v", err)
	}
	if len(all) != 3 || all[0].ID != "old2" || all[1].ID != "old1" || all[2].ID != "old3" {
		t.Fatalf("unexpected order: %+v", all)
	}

	// Paging by one must visit every row exactly once, including ties on expires_at.
	var seen []string
	cur := ExpiryCursor{}
	for i := 0; i < 5; i++ {
		page, err := ListExpiredDemands(ctx, db, cur, now, 1)
		if err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
		if len(page) == 0 {
			break
		}
		seen = append(seen, page[0].ID)
		cur = page[0]
	}
	if strings.Join(seen, ",") != "old2,old1,old3" {
		t.Fatalf("keyset paging visited %v", seen)
	}
}
