package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"chartguard/internal/platform/clock"
	"chartguard/internal/platform/kv"
	"chartguard/internal/services/verify/domain"
	"chartguard/internal/services/verify/repo"
)

// fakeProbe answers from a fixed set and counts calls per id
type fakeProbe struct {
	known map[string]bool
	calls map[string]int
}

func newFakeProbe(known ...string) *fakeProbe {
	m := map[string]bool{}
	for _, id := range known {
		m[id] = true
	}
	return &fakeProbe{known: m, calls: map[string]int{}}
}

func (p *fakeProbe) Exists(_ context.Context, id string) bool {
	p.calls[id]++
	return p.known[id]
}

func newFixture(t *testing.T, probe domain.ProbePort) (*Service, *kv.Memory, *clock.Fixed) {
	t.Helper()
	store := kv.NewMemory()
	clk := &clock.Fixed{T: time.Date(2026, 8, 30, 9, 0, 0, 0, clock.JST)}
	return New(repo.NewKV(store), probe, clk), store, clk
}

func TestVerify_EmptyInputNoIO(t *testing.T) {
	probe := newFakeProbe()
	svc, store, _ := newFixture(t, probe)

	got, err := svc.Verify(context.Background(), nil)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("results %v", got)
	}
	if len(probe.calls) != 0 {
		t.Fatal("probe called for empty input")
	}
	if _, found, _ := store.Get(context.Background(), repo.KeyCache); found {
		t.Fatal("cache written for empty input")
	}
}

func TestVerify_CacheHitSkipsProbe(t *testing.T) {
	probe := newFakeProbe("31978945")
	svc, _, _ := newFixture(t, probe)
	ctx := context.Background()

	first, err := svc.Verify(ctx, []string{"31978945", "99999999"})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first["31978945"] || first["99999999"] {
		t.Fatalf("results %v", first)
	}

	second, err := svc.Verify(ctx, []string{"31978945", "99999999"})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second["31978945"] || second["99999999"] {
		t.Fatalf("results %v", second)
	}
	if probe.calls["31978945"] != 1 || probe.calls["99999999"] != 1 {
		t.Fatalf("same-day repeats must be served from cache: %v", probe.calls)
	}
}

func TestVerify_NegativeResultsAreCached(t *testing.T) {
	probe := newFakeProbe()
	svc, _, _ := newFixture(t, probe)
	ctx := context.Background()

	if _, err := svc.Verify(ctx, []string{"404404"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.Verify(ctx, []string{"404404"}); err != nil {
		t.Fatalf("second: %v", err)
	}
	if probe.calls["404404"] != 1 {
		t.Fatalf("negative outcome not cached: %v", probe.calls)
	}
}

func TestVerify_DayChangeReprobes(t *testing.T) {
	probe := newFakeProbe("31978945")
	svc, _, clk := newFixture(t, probe)
	ctx := context.Background()

	if _, err := svc.Verify(ctx, []string{"31978945"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	clk.Advance(24 * time.Hour)
	if _, err := svc.Verify(ctx, []string{"31978945"}); err != nil {
		t.Fatalf("second: %v", err)
	}
	if probe.calls["31978945"] != 2 {
		t.Fatalf("stale-day cache must not answer: %v", probe.calls)
	}
}

func TestVerify_WidthFoldedIdentifiersShareEntries(t *testing.T) {
	probe := newFakeProbe("31978945")
	svc, _, _ := newFixture(t, probe)
	ctx := context.Background()

	got, err := svc.Verify(ctx, []string{"３１９７８９４５", " 31978945 "})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !got["31978945"] {
		t.Fatalf("results %v", got)
	}
	// callers find their own spelling too
	if !got["３１９７８９４５"] || !got[" 31978945 "] {
		t.Fatalf("original keys not echoed: %v", got)
	}
	if probe.calls["31978945"] != 1 {
		t.Fatalf("width variants probed separately: %v", probe.calls)
	}
}

func TestVerify_CapacityPrunesOldest(t *testing.T) {
	probe := newFakeProbe()
	svc, store, clk := newFixture(t, probe)
	ctx := context.Background()

	// 205 entries, each observed one second apart
	for i := 0; i < 205; i++ {
		id := fmt.Sprintf("%08d", i)
		probe.known[id] = true
		if _, err := svc.Verify(ctx, []string{id}); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
		clk.Advance(time.Second)
	}

	raw, found, _ := store.Get(ctx, repo.KeyCache)
	if !found {
		t.Fatal("cache missing")
	}
	var c domain.Cache
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != domain.CacheCap {
		t.Fatalf("cache size %d, want %d", len(c.Items), domain.CacheCap)
	}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("%08d", i)
		if _, ok := c.Items[id]; ok {
			t.Fatalf("oldest entry %s survived the prune", id)
		}
	}
	if _, ok := c.Items[fmt.Sprintf("%08d", 204)]; !ok {
		t.Fatal("newest entry pruned")
	}
}

func TestVerify_SingleCallCapacityKeepsNewest(t *testing.T) {
	probe := newFakeProbe()
	svc, store, _ := newFixture(t, probe)
	ctx := context.Background()

	// one call with 205 distinct ids; the clock never moves, so only the
	// per-call stamps order the prune
	ids := make([]string, 205)
	for i := range ids {
		ids[i] = fmt.Sprintf("%08d", i)
		probe.known[ids[i]] = true
	}
	if _, err := svc.Verify(ctx, ids); err != nil {
		t.Fatalf("verify: %v", err)
	}

	raw, found, _ := store.Get(ctx, repo.KeyCache)
	if !found {
		t.Fatal("cache missing")
	}
	var c domain.Cache
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(c.Items) != domain.CacheCap {
		t.Fatalf("cache size %d, want %d", len(c.Items), domain.CacheCap)
	}
	for i := 0; i < 5; i++ {
		if _, ok := c.Items[ids[i]]; ok {
			t.Fatalf("first-inserted entry %s survived the prune", ids[i])
		}
	}
	for i := 200; i < 205; i++ {
		if _, ok := c.Items[ids[i]]; !ok {
			t.Fatalf("last-inserted entry %s pruned", ids[i])
		}
	}
}

func TestVerify_NoAdditionsNoWrite(t *testing.T) {
	probe := newFakeProbe("31978945")
	svc, store, _ := newFixture(t, probe)
	ctx := context.Background()

	if _, err := svc.Verify(ctx, []string{"31978945"}); err != nil {
		t.Fatalf("first: %v", err)
	}
	raw1, _, _ := store.Get(ctx, repo.KeyCache)

	if _, err := svc.Verify(ctx, []string{"31978945"}); err != nil {
		t.Fatalf("second: %v", err)
	}
	raw2, _, _ := store.Get(ctx, repo.KeyCache)
	if string(raw1) != string(raw2) {
		t.Fatal("all-hit call rewrote the cache")
	}
}
