// Package stream provides a DynamoDB Streams handler that replicates table
// changes into the document store.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/ravenstore/store"
)

// Config holds configuration for a Handler.
type Config struct {
	// EntityName is the entity name of every replicated document. When empty
	// it is read from EntityTypeAttribute of each record.
	EntityName string

	// KeyAttribute holds the document key. A value without '/' is prefixed
	// with the entity's collection name.
	KeyAttribute string

	// EntityTypeAttribute holds the entity name when EntityName is empty.
	EntityTypeAttribute string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyAttribute:        "id",
		EntityTypeAttribute: "entity_type",
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.KeyAttribute == "" {
		c.KeyAttribute = "id"
	}
	if c.EntityTypeAttribute == "" {
		c.EntityTypeAttribute = "entity_type"
	}
}

// Handler processes DynamoDB stream events.
type Handler struct {
	store  *store.Store
	config Config
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, config Config, logger *slog.Logger) *Handler {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		config: config,
		logger: logger,
	}
}

// HandleReplicate writes inserted and modified items as documents and deletes
// the documents of removed items. It is designed to be used as an AWS Lambda
// handler. Version conflicts and unusable records are logged and skipped;
// any other failure is returned so the batch is retried.
func (h *Handler) HandleReplicate(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch events.DynamoDBOperationType(record.EventName) {
	case events.DynamoDBOperationTypeInsert, events.DynamoDBOperationTypeModify:
		return h.replicate(ctx, record)
	case events.DynamoDBOperationTypeRemove:
		return h.remove(ctx, record)
	default:
		return nil
	}
}

func (h *Handler) replicate(ctx context.Context, record events.DynamoDBEventRecord) error {
	image := record.Change.NewImage
	entityName := h.entityName(image)
	if entityName == "" {
		h.logger.Warn("skipping record without entity name", "eventID", record.EventID)
		return nil
	}

	fields := ConvertImage(image)
	delete(fields, h.config.KeyAttribute)
	delete(fields, h.config.EntityTypeAttribute)

	doc := store.CreateDocument(entityName, fields)
	doc.ID = h.documentKey(entityName, getStringAttr(image, h.config.KeyAttribute))

	res, err := h.store.StoreDocument(ctx, doc)
	if err != nil {
		return fmt.Errorf("store %s: %w", doc.ID, err)
	}
	if res.Outcome == store.OutcomeConflict {
		h.logger.Warn("skipping conflicting record",
			"eventID", record.EventID,
			"key", doc.ID,
		)
		return nil
	}

	h.logger.Info("replicated document",
		"eventID", record.EventID,
		"key", doc.ID,
		"entityName", entityName,
	)
	return nil
}

func (h *Handler) remove(ctx context.Context, record events.DynamoDBEventRecord) error {
	image := record.Change.OldImage
	if len(image) == 0 {
		image = record.Change.Keys
	}
	entityName := h.entityName(image)
	raw := getStringAttr(image, h.config.KeyAttribute)
	if raw == "" || (entityName == "" && !strings.Contains(raw, "/")) {
		h.logger.Warn("skipping removal without document key", "eventID", record.EventID)
		return nil
	}
	key := h.documentKey(entityName, raw)

	res, err := h.store.DeleteDocument(ctx, key, "")
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	switch res.Outcome {
	case store.OutcomeNotFound:
		h.logger.Debug("document already removed", "key", key)
	case store.OutcomeConflict:
		h.logger.Warn("skipping conflicting removal", "eventID", record.EventID, "key", key)
	default:
		h.logger.Info("removed document", "eventID", record.EventID, "key", key)
	}
	return nil
}

func (h *Handler) entityName(image map[string]events.DynamoDBAttributeValue) string {
	if h.config.EntityName != "" {
		return h.config.EntityName
	}
	return getStringAttr(image, h.config.EntityTypeAttribute)
}

// documentKey returns raw when it is already a full key, otherwise
// "<collection>/<raw>". An empty raw leaves key generation to the store.
func (h *Handler) documentKey(entityName, raw string) string {
	if raw == "" || strings.Contains(raw, "/") {
		return raw
	}
	return h.store.Conventions().CollectionName(entityName) + "/" + raw
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
// Numbers are returned in their decimal form.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok {
		switch v.DataType() {
		case events.DataTypeString:
			return v.String()
		case events.DataTypeNumber:
			return v.Number()
		}
	}
	return ""
}

// ConvertImage converts a DynamoDB stream image to document fields.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]any {
	fields := make(map[string]any, len(image))
	for k, v := range image {
		fields[k] = convertAttr(v)
	}
	return fields
}

// convertAttr maps a stream attribute to its JSON-compatible value.
func convertAttr(v events.DynamoDBAttributeValue) any {
	switch v.DataType() {
	case events.DataTypeString:
		return v.String()
	case events.DataTypeNumber:
		return parseNumber(v.Number())
	case events.DataTypeBoolean:
		return v.Boolean()
	case events.DataTypeNull:
		return nil
	case events.DataTypeBinary:
		return v.Binary()
	case events.DataTypeList:
		list := v.List()
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = convertAttr(item)
		}
		return out
	case events.DataTypeMap:
		return ConvertImage(v.Map())
	case events.DataTypeStringSet:
		return v.StringSet()
	case events.DataTypeNumberSet:
		set := v.NumberSet()
		out := make([]any, len(set))
		for i, n := range set {
			out[i] = parseNumber(n)
		}
		return out
	case events.DataTypeBinarySet:
		return v.BinarySet()
	default:
		return nil
	}
}

// parseNumber prefers an integer and falls back to a float, then to the
// original text for values neither can hold.
func parseNumber(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
