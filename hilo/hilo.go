// Package hilo generates document keys from ranges reserved in a shared
// DynamoDB counter.
//
// Each collection has one counter item. A Generator reserves Capacity ids at
// a time with an atomic ADD and hands them out locally, so many processes can
// number the same collection without colliding:
//
//	gen, err := hilo.NewFromDefaultConfig(ctx, hilo.Config{Scope: "Northwind"})
//	if err != nil {
//	    return err
//	}
//	s.SetKeyGenerator(gen) // keys like "albums/33"
package hilo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/singleflight"

	"github.com/jacentio/ravenstore/internal/shard"
)

// ErrNoCounter is returned when the counter update returns no value.
var ErrNoCounter = errors.New("hilo: counter update returned no value")

// UpdateItemAPI is the part of the DynamoDB client a Generator uses.
type UpdateItemAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// idRange is the block (lo, hi] currently handed out for a collection.
type idRange struct {
	next int64
	hi   int64
}

// Generator is a store.KeyGenerator backed by DynamoDB counters.
// It is safe for concurrent use. Reservations for different collections run
// independently; concurrent callers needing a new range for the same
// collection share one UpdateItem call.
type Generator struct {
	client UpdateItemAPI
	config Config

	mu     sync.Mutex
	ranges map[string]*idRange

	reserving singleflight.Group
}

// New creates a Generator using client.
func New(client UpdateItemAPI, config Config) *Generator {
	config.validate()
	return &Generator{
		client: client,
		config: config,
		ranges: make(map[string]*idRange),
	}
}

// NewFromDefaultConfig creates a Generator with a DynamoDB client built from
// the default AWS configuration chain.
func NewFromDefaultConfig(ctx context.Context, config Config, optFns ...func(*awsconfig.LoadOptions) error) (*Generator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("hilo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), config), nil
}

// GenerateKey returns "<collection>/<n>" with n taken from the current
// range, reserving a new range when it is used up.
func (g *Generator) GenerateKey(ctx context.Context, collection string) (string, error) {
	for {
		if n, ok := g.take(collection); ok {
			return collection + "/" + strconv.FormatInt(n, 10), nil
		}

		v, err, _ := g.reserving.Do(collection, func() (interface{}, error) {
			return g.reserve(ctx, collection)
		})
		if err != nil {
			return "", err
		}
		g.install(collection, v.(int64))
	}
}

// take hands out the next id of the collection's range, if any is left.
func (g *Generator) take(collection string) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.ranges[collection]
	if !ok || r.next > r.hi {
		return 0, false
	}
	n := r.next
	r.next++
	return n, true
}

// install makes (hi-Capacity, hi] the collection's range unless a newer
// range is already in place. Callers sharing one reservation install it once.
func (g *Generator) install(collection string, hi int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.ranges[collection]; ok && r.hi >= hi {
		return
	}
	g.ranges[collection] = &idRange{next: hi - g.config.Capacity + 1, hi: hi}
}

// counterItem is the projection returned by the counter update.
type counterItem struct {
	Hi int64 `dynamodbav:"hi"`
}

// reserve adds Capacity to the collection's counter and returns the new
// high value.
func (g *Generator) reserve(ctx context.Context, collection string) (int64, error) {
	out, err := g.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(g.config.TableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: shard.CounterPK(g.config.Scope, collection)},
		},
		UpdateExpression: aws.String("SET #collection = :collection ADD #hi :capacity"),
		ExpressionAttributeNames: map[string]string{
			"#collection": "collection",
			"#hi":         "hi",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":collection": &types.AttributeValueMemberS{Value: collection},
			":capacity":   &types.AttributeValueMemberN{Value: strconv.FormatInt(g.config.Capacity, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("hilo: reserve %s: %w", collection, err)
	}
	if _, ok := out.Attributes["hi"]; !ok {
		return 0, ErrNoCounter
	}

	var item counterItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("hilo: decode counter: %w", err)
	}
	return item.Hi, nil
}
