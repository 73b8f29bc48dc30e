package store_test

import (
	"reflect"
	"testing"

	"github.com/goccy/go-json"

	"github.com/jacentio/ravenstore/store"
)

func TestCreateDocument_Blank(t *testing.T) {
	doc := store.CreateDocument("TestDoc", nil)

	if doc == nil {
		t.Fatal("expected non-nil document")
	}
	if doc.Metadata.EntityName != "TestDoc" {
		t.Errorf("expected EntityName 'TestDoc', got %q", doc.Metadata.EntityName)
	}
	if doc.Metadata.ETag != "" {
		t.Errorf("expected no etag, got %q", doc.Metadata.ETag)
	}
	if len(doc.Fields) != 0 {
		t.Errorf("expected no fields, got %v", doc.Fields)
	}
	if doc.ID != "" {
		t.Errorf("expected no id, got %q", doc.ID)
	}
}

func TestCreateDocument_WithData(t *testing.T) {
	data := map[string]any{"data": "Test Data"}
	doc := store.CreateDocument("TestDoc", data)

	if doc.Metadata.EntityName != "TestDoc" {
		t.Errorf("expected EntityName 'TestDoc', got %q", doc.Metadata.EntityName)
	}
	if doc.Fields["data"] != "Test Data" {
		t.Errorf("expected data 'Test Data', got %v", doc.Fields["data"])
	}

	// The document owns a copy of the caller's map.
	doc.Set("extra", 1)
	if _, ok := data["extra"]; ok {
		t.Error("expected caller's map to be left untouched")
	}
}

func TestCreateDocument_LiftsID(t *testing.T) {
	doc := store.CreateDocument("TestDoc", map[string]any{
		"id":   "TestDoc/1",
		"data": "My new test data",
	})

	if doc.ID != "TestDoc/1" {
		t.Errorf("expected ID 'TestDoc/1', got %q", doc.ID)
	}
	if _, ok := doc.Fields["id"]; ok {
		t.Error("expected id not to remain a data field")
	}
}

func TestCreateDocument_Reapply(t *testing.T) {
	original := store.CreateDocument("TestDoc", map[string]any{"a": "1", "b": "2"})
	original.Metadata.ETag = "etag-1"

	again := store.CreateDocument("TestDoc", original.Map())

	if !reflect.DeepEqual(again.Fields, original.Fields) {
		t.Errorf("expected fields %v, got %v", original.Fields, again.Fields)
	}
	if _, ok := again.Fields[store.MetadataField]; ok {
		t.Error("expected metadata not to be duplicated as a field")
	}
	if again.Metadata.ETag != "etag-1" {
		t.Errorf("expected etag to survive, got %q", again.Metadata.ETag)
	}
}

func TestCreateDocument_EntityNameImmutable(t *testing.T) {
	original := store.CreateDocument("TestDoc", map[string]any{"a": "1"})
	other := store.CreateDocument("Other", original.Map())

	if other.Metadata.EntityName != "TestDoc" {
		t.Errorf("expected EntityName 'TestDoc', got %q", other.Metadata.EntityName)
	}
}

func TestDocument_SetIgnoresMetadataField(t *testing.T) {
	doc := &store.Document{}
	doc.Set(store.MetadataField, "nope")
	doc.Set("name", "value")

	if _, ok := doc.Get(store.MetadataField); ok {
		t.Error("expected metadata field to be rejected")
	}
	if v, ok := doc.Get("name"); !ok || v != "value" {
		t.Errorf("expected name 'value', got %v", v)
	}
}

func TestDocument_JSON(t *testing.T) {
	doc := store.CreateDocument("Genres", map[string]any{"Name": "Rock"})
	doc.ID = "genres/1"
	doc.Metadata.ETag = "etag-1"

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if flat["id"] != "genres/1" {
		t.Errorf("expected id 'genres/1', got %v", flat["id"])
	}
	meta, ok := flat[store.MetadataField].(map[string]any)
	if !ok {
		t.Fatalf("expected @metadata object, got %T", flat[store.MetadataField])
	}
	if meta["raven-entity-name"] != "Genres" {
		t.Errorf("expected raven-entity-name 'Genres', got %v", meta["raven-entity-name"])
	}
	if meta["etag"] != "etag-1" {
		t.Errorf("expected etag 'etag-1', got %v", meta["etag"])
	}

	var decoded store.Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal document: %v", err)
	}
	if decoded.ID != doc.ID || decoded.Metadata != doc.Metadata {
		t.Errorf("expected %+v, got %+v", doc, decoded)
	}
	if decoded.Fields["Name"] != "Rock" {
		t.Errorf("expected Name 'Rock', got %v", decoded.Fields["Name"])
	}
}
