package store

import (
	"strings"

	"github.com/goccy/go-json"
)

// MetadataField is the reserved field holding the metadata envelope in the
// flat JSON form of a document.
const MetadataField = "@metadata"

// Keys inside the metadata envelope.
const (
	metaEntityName   = "raven-entity-name"
	metaETag         = "etag"
	metaLastModified = "last-modified"
	metaID           = "@id"
)

// Metadata is the envelope kept beside a document's data fields.
type Metadata struct {
	// EntityName is the entity type (e.g. "Genres"). Immutable once set.
	EntityName string

	// ETag is the server's version tag, refreshed on every write and read.
	ETag string

	// LastModified is the server's last modification timestamp, as sent.
	LastModified string
}

// Document is a JSON document identified by a key.
type Document struct {
	// ID is the document key, e.g. "genres/1". Empty until assigned.
	ID string

	// Fields are the document's own data fields. They never contain metadata.
	Fields map[string]any

	Metadata Metadata
}

// CreateDocument returns a document holding a copy of data with its entity
// name set.
//
// A string "id" field becomes the document key. A "@metadata" entry is
// merged into the envelope instead of being kept as a field, and an entity
// name already present there wins over entityName.
func CreateDocument(entityName string, data map[string]any) *Document {
	doc := documentFromMap(data)
	if doc.Metadata.EntityName == "" {
		doc.Metadata.EntityName = entityName
	}
	return doc
}

// Get returns a data field.
func (d *Document) Get(field string) (any, bool) {
	v, ok := d.Fields[field]
	return v, ok
}

// Set assigns a data field. The metadata field cannot be set this way.
func (d *Document) Set(field string, value any) {
	if field == MetadataField {
		return
	}
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	d.Fields[field] = value
}

// Map returns the flat form: data fields, "id" when set, and "@metadata".
func (d *Document) Map() map[string]any {
	m := make(map[string]any, len(d.Fields)+2)
	for k, v := range d.Fields {
		m[k] = v
	}
	if d.ID != "" {
		m["id"] = d.ID
	}
	meta := map[string]any{metaEntityName: d.Metadata.EntityName}
	if d.Metadata.ETag != "" {
		meta[metaETag] = d.Metadata.ETag
	}
	if d.Metadata.LastModified != "" {
		meta[metaLastModified] = d.Metadata.LastModified
	}
	m[MetadataField] = meta
	return m
}

// MarshalJSON encodes the flat form.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

// UnmarshalJSON decodes the flat form.
func (d *Document) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*d = *documentFromMap(m)
	return nil
}

// documentFromMap splits a flat map into key, fields and metadata.
func documentFromMap(m map[string]any) *Document {
	doc := &Document{Fields: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case "id":
			if id, ok := v.(string); ok {
				doc.ID = id
				continue
			}
		case MetadataField:
			if meta, ok := v.(map[string]any); ok {
				mergeMetadata(doc, meta)
				continue
			}
		}
		doc.Fields[k] = v
	}
	return doc
}

// mergeMetadata reads an "@metadata" object. Keys are matched without
// regard to case since servers send "Raven-Entity-Name" and "@etag" in query
// results but clients write "raven-entity-name" and "etag".
func mergeMetadata(doc *Document, meta map[string]any) {
	for k, v := range meta {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case metaEntityName:
			if doc.Metadata.EntityName == "" {
				doc.Metadata.EntityName = s
			}
		case metaETag, "@etag":
			doc.Metadata.ETag = trimETag(s)
		case metaLastModified:
			doc.Metadata.LastModified = s
		case metaID:
			if doc.ID == "" {
				doc.ID = s
			}
		}
	}
}

// trimETag strips the quotes and weak prefix HTTP puts around entity tags.
func trimETag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "W/")
	return strings.Trim(s, `"`)
}
