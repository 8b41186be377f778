package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
	"fintrack/internal/transactions"
)

const user = "local-user"

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]core.Transaction
	reject  map[string]bool
	err     error
	hook    func()
}

func (f *fakePublisher) Publish(_ context.Context, list []core.Transaction) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, list)
	if f.hook != nil {
		f.hook()
	}
	var ids []string
	for _, t := range list {
		if !f.reject[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids, f.err
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type countingReloader struct{ n int }

func (r *countingReloader) Load(context.Context) { r.n++ }

func newRepo(t *testing.T) *transactions.Repository {
	t.Helper()
	s := memory.New(core.DefaultCategories)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return transactions.NewRepository(s, nil)
}

func create(t *testing.T, repo *transactions.Repository, title string, day int) core.Transaction {
	t.Helper()
	tx, err := repo.Create(context.Background(), core.NewTransaction{
		UserID: user, Title: title, Amount: core.Money{Cents: 1000}, Category: "Food",
		Date: time.Date(2025, 4, day, 0, 0, 0, 0, time.UTC), IsExpense: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

func TestSyncOnce(t *testing.T) {
	tests := []struct {
		name       string
		reject     []int
		pubErr     error
		wantMarked int64
		wantErr    bool
		wantLeft   int
		wantReload int
	}{
		{name: "all accepted", wantMarked: 3, wantReload: 1},
		{name: "partial", reject: []int{1}, wantMarked: 2, wantLeft: 1, wantReload: 1},
		{name: "publisher error keeps accepted", reject: []int{0, 2}, pubErr: errors.New("channel closed"), wantMarked: 1, wantErr: true, wantLeft: 2, wantReload: 1},
		{name: "nothing accepted", reject: []int{0, 1, 2}, wantMarked: 0, wantLeft: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			txs := []core.Transaction{create(t, repo, "a", 1), create(t, repo, "b", 2), create(t, repo, "c", 3)}

			pub := &fakePublisher{reject: map[string]bool{}, err: tt.pubErr}
			for _, i := range tt.reject {
				pub.reject[txs[i].ID] = true
			}
			reloader := &countingReloader{}
			p := NewProcessor(repo, pub, reloader, user, Config{BatchSize: 10})

			res, err := p.SyncOnce(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SyncOnce error = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Pending != 3 || res.Marked != tt.wantMarked {
				t.Fatalf("unexpected result: %+v", res)
			}
			left, _ := repo.GetUnsynced(ctx, user, 0)
			if len(left) != tt.wantLeft {
				t.Fatalf("expected %d unsynced, got %d", tt.wantLeft, len(left))
			}
			if reloader.n != tt.wantReload {
				t.Fatalf("reloads = %d, want %d", reloader.n, tt.wantReload)
			}
		})
	}
}

func TestSyncOnceRespectsBatchSizeAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	create(t, repo, "newest", 20)
	create(t, repo, "oldest", 1)
	create(t, repo, "middle", 10)

	pub := &fakePublisher{}
	p := NewProcessor(repo, pub, nil, user, Config{BatchSize: 2})
	if _, err := p.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	first := pub.batches[0]
	if len(first) != 2 || first[0].Title != "oldest" || first[1].Title != "middle" {
		t.Fatalf("unexpected first batch: %v", first)
	}

	if _, err := p.SyncOnce(ctx); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	res, err := p.SyncOnce(ctx)
	if err != nil || res.Pending != 0 {
		t.Fatalf("expected nothing pending, got %+v err=%v", res, err)
	}
	if pub.calls() != 2 {
		t.Fatalf("publisher must not be called for an empty batch, calls=%d", pub.calls())
	}
}

func TestSyncOnceLeavesRowsEditedDuringPublish(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	tx := create(t, repo, "lunch", 1)

	pub := &fakePublisher{}
	pub.hook = func() {
		edited := tx
		edited.Title = "lunch with team"
		if _, err := repo.Update(ctx, edited); err != nil {
			t.Errorf("update: %v", err)
		}
	}
	p := NewProcessor(repo, pub, nil, user, Config{})
	res, err := p.SyncOnce(ctx)
	if err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}
	if res.Accepted != 1 || res.Marked != 0 {
		t.Fatalf("edited row must stay unsynced: %+v", res)
	}
}

func TestLogPublisherAcceptsNothing(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	create(t, repo, "a", 1)

	p := NewProcessor(repo, LogPublisher{}, nil, user, Config{})
	res, err := p.SyncOnce(ctx)
	if err != nil || res.Marked != 0 || res.Pending != 1 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestProcessorLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	create(t, repo, "a", 1)

	pub := &fakePublisher{}
	p := NewProcessor(repo, pub, nil, user, Config{Interval: time.Hour})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}
	if !p.IsRunning() {
		t.Fatal("processor should be running")
	}

	// The loop runs one pass immediately.
	deadline := time.Now().Add(2 * time.Second)
	for pub.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.calls() != 1 {
		t.Fatalf("expected an immediate pass, got %d calls", pub.calls())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("processor should be stopped")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
