package graph

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/prayatna/fraudscreen/backend/pkg/common"
)

func TestCache_GetOrBuildReturnsSameSnapshot(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 4})
	records := testRecords()

	first, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatal("unchanged record set must return the cached snapshot, not a rebuild")
	}
	if !reflect.DeepEqual(first.Rings, second.Rings) {
		t.Fatal("ring output differs between cache hits")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected a single cache entry, got %d", cache.Len())
	}
}

func TestCache_OrderInsensitiveHit(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 4})
	records := testRecords()
	reversed := make([]common.BeneficiaryRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}

	first, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrBuild(context.Background(), reversed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first != second {
		t.Fatal("reordered records must hit the same cache entry")
	}
}

func TestCache_ConcurrentCallersSingleBuild(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 4})
	records := testRecords()

	var wg sync.WaitGroup
	snapshots := make([]*Snapshot, 16)
	release := make(chan struct{})

	for i := range snapshots {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-release
			snap, err := cache.GetOrBuild(context.Background(), records)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			snapshots[i] = snap
		}(i)
	}
	close(release)
	wg.Wait()

	for i := 1; i < len(snapshots); i++ {
		if snapshots[i] != snapshots[0] {
			t.Fatal("concurrent callers for one fingerprint must share a single build")
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry after concurrent calls, got %d", cache.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 2})

	makeRecords := func(id string) []common.BeneficiaryRecord {
		return []common.BeneficiaryRecord{
			{BeneficiaryID: id, PhoneNumber: "9000000001", BankAccount: "ACC_" + id, HouseholdID: "HH_" + id},
		}
	}

	first, err := cache.GetOrBuild(context.Background(), makeRecords("BEN_1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.GetOrBuild(context.Background(), makeRecords("BEN_2")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.GetOrBuild(context.Background(), makeRecords("BEN_3")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cache.Len() != 2 {
		t.Fatalf("expected capacity-bounded cache of 2, got %d", cache.Len())
	}

	// The evicted snapshot stays usable for anyone still holding it.
	if len(first.Graph.Nodes) != 1 || first.Graph.Nodes[0].ID != "BEN_1" {
		t.Fatal("evicted snapshot was corrupted")
	}

	// BEN_1 was least recently used, so fetching it again is a rebuild.
	rebuilt, err := cache.GetOrBuild(context.Background(), makeRecords("BEN_1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rebuilt == first {
		t.Fatal("expected a fresh snapshot after eviction")
	}
	if rebuilt.Fingerprint != first.Fingerprint {
		t.Fatal("rebuild of identical records must reproduce the fingerprint")
	}
}

func TestCache_CanceledBuilderDoesNotPoisonOthers(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 2})
	records := testRecords()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The cancelled caller sees its own cancellation.
	if _, err := cache.GetOrBuild(ctx, records); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled for the cancelled caller, got %v", err)
	}

	// The completed snapshot is still published for everyone else.
	if cache.Len() != 1 {
		t.Fatalf("completed build must be cached despite the builder's cancellation, got %d entries", cache.Len())
	}
	snap, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("live caller must not inherit another caller's cancellation: %v", err)
	}
	if snap == nil || len(snap.Graph.Nodes) == 0 {
		t.Fatal("expected the published snapshot for the live caller")
	}
}

func TestCache_CancelledWaiterLeavesEntryIntact(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 2})
	records := testRecords()

	first, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A cancelled cache hit still returns the ready snapshot or the
	// cancellation, but never disturbs the entry.
	if _, err := cache.GetOrBuild(ctx, records); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected error: %v", err)
	}

	again, err := cache.GetOrBuild(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != first {
		t.Fatal("cache entry must survive a cancelled reader")
	}
}

func TestCache_Latest(t *testing.T) {
	cache := NewCache(NewCacheParams{MinRingSize: 3, Capacity: 4})
	if cache.Latest() != nil {
		t.Fatal("empty cache must have no latest snapshot")
	}

	snap, err := cache.GetOrBuild(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache.Latest() != snap {
		t.Fatal("latest must return the most recently used snapshot")
	}
}
