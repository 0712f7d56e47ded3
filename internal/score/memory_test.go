package score

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStoreGetSaveDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, 1); err != ErrNotFound {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	rec := &Record{PostID: 1, AuthorID: 2, Category: "golang", TotalScore: 4.5, LikeCount: 3}
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TotalScore != 4.5 || got.LikeCount != 3 || got.Category != "golang" {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.LastUpdated.IsZero() {
		t.Errorf("timestamps not set: %+v", got)
	}

	// Mutating the returned record must not affect the stored copy.
	got.LikeCount = 100
	again, _ := store.Get(ctx, 1)
	if again.LikeCount != 3 {
		t.Errorf("stored record mutated through returned copy")
	}

	if err := store.Delete(ctx, 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, 1); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, 1); err != nil {
		t.Errorf("Delete(missing) error = %v, want nil", err)
	}
}

func TestMemoryStoreUpdateCreatesRecord(t *testing.T) {
	store := NewMemoryStore()
	rec, err := store.Update(context.Background(), 5, func(rec *Record) error {
		rec.LikeCount = 2
		rec.TotalScore = 2
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec.PostID != 5 || rec.LikeCount != 2 {
		t.Errorf("Update() = %+v", rec)
	}
}

func TestMemoryStoreUpdateError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	wantErr := errors.New("boom")

	// A failing fn on a missing record must not leave a zeroed record behind.
	if _, err := store.Update(ctx, 42, func(*Record) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("Update() error = %v, want %v", err, wantErr)
	}
	if _, err := store.Get(ctx, 42); err != ErrNotFound {
		t.Errorf("Get() after failed create error = %v, want ErrNotFound", err)
	}

	// A failing fn on an existing record must not persist partial mutations.
	if err := store.Save(ctx, &Record{PostID: 7, LikeCount: 3}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_, err := store.Update(ctx, 7, func(rec *Record) error {
		rec.LikeCount = 999
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Update() error = %v, want %v", err, wantErr)
	}
	got, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LikeCount != 3 {
		t.Errorf("LikeCount = %d, want 3 (failed update must not persist)", got.LikeCount)
	}
}

func TestMemoryStoreUpdateConcurrent(t *testing.T) {
	store := NewMemoryStore()
	const goroutines = 16
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, _ = store.Update(context.Background(), 1, func(rec *Record) error {
					rec.ViewCount++
					return nil
				})
			}
		}()
	}
	wg.Wait()

	rec, err := store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.ViewCount != goroutines*perGoroutine {
		t.Errorf("ViewCount = %d, want %d", rec.ViewCount, goroutines*perGoroutine)
	}
}

func TestMemoryStoreTopOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seed := []*Record{
		{PostID: 1, AuthorID: 10, Category: "golang", TotalScore: 5},
		{PostID: 2, AuthorID: 10, Category: "rust", TotalScore: 9},
		{PostID: 3, AuthorID: 11, Category: "golang", TotalScore: 9},
		{PostID: 4, AuthorID: 11, Category: "golang", TotalScore: 1},
	}
	for _, rec := range seed {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	ids, err := store.TopIDsByScore(ctx, 10)
	if err != nil {
		t.Fatalf("TopIDsByScore() error = %v", err)
	}
	// Ties break toward the lower post ID.
	want := []int64{2, 3, 1, 4}
	if len(ids) != len(want) {
		t.Fatalf("TopIDsByScore() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("TopIDsByScore()[%d] = %d, want %d", i, ids[i], want[i])
		}
	}

	ids, err = store.TopIDsByCategory(ctx, "golang", 2)
	if err != nil {
		t.Fatalf("TopIDsByCategory() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 1 {
		t.Errorf("TopIDsByCategory() = %v, want [3 1]", ids)
	}

	ids, err = store.TopIDsByAuthor(ctx, 11, 10)
	if err != nil {
		t.Fatalf("TopIDsByAuthor() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 4 {
		t.Errorf("TopIDsByAuthor() = %v, want [3 4]", ids)
	}

	records, err := store.TopByScore(ctx, 1)
	if err != nil {
		t.Fatalf("TopByScore() error = %v", err)
	}
	if len(records) != 1 || records[0].PostID != 2 {
		t.Errorf("TopByScore(1) = %+v, want post 2", records)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 4 || all[0].PostID != 1 || all[3].PostID != 4 {
		t.Errorf("All() not ordered by post id: %+v", all)
	}
}
