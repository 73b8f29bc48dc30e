package hilo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/ravenstore/internal/shard"
)

// fakeCounters emulates UpdateItem ADD on a counter table.
type fakeCounters struct {
	mu       sync.Mutex
	counters map[string]int64
	calls    int
	err      error
	lastKey  string
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counters: make(map[string]int64)}
}

func (f *fakeCounters) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var pk string
	if err := attributevalue.Unmarshal(in.Key["pk"], &pk); err != nil {
		return nil, err
	}
	var capacity int64
	if err := attributevalue.Unmarshal(in.ExpressionAttributeValues[":capacity"], &capacity); err != nil {
		return nil, err
	}
	f.lastKey = pk
	f.counters[pk] += capacity

	attrs, err := attributevalue.MarshalMap(map[string]any{"hi": f.counters[pk]})
	if err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: attrs}, nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TableName != "ravenstore_hilo" {
		t.Errorf("expected TableName 'ravenstore_hilo', got %q", cfg.TableName)
	}
	if cfg.Capacity != 32 {
		t.Errorf("expected Capacity 32, got %d", cfg.Capacity)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Capacity: -1}
	cfg.validate()
	if cfg.TableName != "ravenstore_hilo" || cfg.Capacity != 32 {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestGenerateKey_Sequential(t *testing.T) {
	client := newFakeCounters()
	g := New(client, Config{Capacity: 3})
	ctx := context.Background()

	expected := []string{"albums/1", "albums/2", "albums/3", "albums/4", "albums/5"}
	for _, want := range expected {
		got, err := g.GenerateKey(ctx, "albums")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if client.calls != 2 {
		t.Errorf("expected 2 reservations, got %d", client.calls)
	}
}

func TestGenerateKey_CounterKey(t *testing.T) {
	client := newFakeCounters()
	g := New(client, Config{Scope: "Northwind"})

	if _, err := g.GenerateKey(context.Background(), "albums"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := shard.CounterPK("Northwind", "albums"); client.lastKey != want {
		t.Errorf("expected counter key %q, got %q", want, client.lastKey)
	}
}

func TestGenerateKey_SharedCounter(t *testing.T) {
	client := newFakeCounters()
	a := New(client, Config{Capacity: 10})
	b := New(client, Config{Capacity: 10})
	ctx := context.Background()

	keyA, _ := a.GenerateKey(ctx, "albums")
	keyB, _ := b.GenerateKey(ctx, "albums")

	if keyA != "albums/1" {
		t.Errorf("expected 'albums/1', got %q", keyA)
	}
	if keyB != "albums/11" {
		t.Errorf("expected second generator to start at 'albums/11', got %q", keyB)
	}
}

func TestGenerateKey_PerCollection(t *testing.T) {
	g := New(newFakeCounters(), DefaultConfig())
	ctx := context.Background()

	a, _ := g.GenerateKey(ctx, "albums")
	b, _ := g.GenerateKey(ctx, "genres")
	if a != "albums/1" || b != "genres/1" {
		t.Errorf("expected independent counters, got %q and %q", a, b)
	}
}

func TestGenerateKey_Concurrent(t *testing.T) {
	g := New(newFakeCounters(), Config{Capacity: 4})

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := g.GenerateKey(context.Background(), "albums")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			seen[key] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 40 {
		t.Errorf("expected 40 distinct keys, got %d", len(seen))
	}
	for key := range seen {
		n, err := strconv.Atoi(strings.TrimPrefix(key, "albums/"))
		if err != nil || n < 1 {
			t.Errorf("unexpected key %q", key)
		}
	}
}

// gatedCounters blocks reservations for one counter key until released.
type gatedCounters struct {
	*fakeCounters
	blockedPK string
	entered   chan struct{}
	release   chan struct{}
}

func (g *gatedCounters) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	var pk string
	if err := attributevalue.Unmarshal(in.Key["pk"], &pk); err != nil {
		return nil, err
	}
	if pk == g.blockedPK {
		close(g.entered)
		<-g.release
	}
	return g.fakeCounters.UpdateItem(ctx, in, optFns...)
}

func TestGenerateKey_CollectionsDoNotBlockEachOther(t *testing.T) {
	client := &gatedCounters{
		fakeCounters: newFakeCounters(),
		blockedPK:    shard.CounterPK("", "albums"),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	g := New(client, DefaultConfig())
	ctx := context.Background()

	albums := make(chan string, 1)
	go func() {
		key, _ := g.GenerateKey(ctx, "albums")
		albums <- key
	}()
	<-client.entered

	genres, err := g.GenerateKey(ctx, "genres")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if genres != "genres/1" {
		t.Errorf("expected 'genres/1' while albums is reserving, got %q", genres)
	}

	close(client.release)
	if key := <-albums; key != "albums/1" {
		t.Errorf("expected 'albums/1', got %q", key)
	}
}

type emptyClient struct{}

func (emptyClient) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func TestGenerateKey_NoCounter(t *testing.T) {
	g := New(emptyClient{}, DefaultConfig())
	if _, err := g.GenerateKey(context.Background(), "albums"); !errors.Is(err, ErrNoCounter) {
		t.Errorf("expected ErrNoCounter, got %v", err)
	}
}
