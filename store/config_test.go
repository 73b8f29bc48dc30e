package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jacentio/ravenstore/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := store.DefaultConfig()

	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryWaitMin != 100*time.Millisecond {
		t.Errorf("expected RetryWaitMin 100ms, got %v", cfg.RetryWaitMin)
	}
	if cfg.RetryWaitMax != 2*time.Second {
		t.Errorf("expected RetryWaitMax 2s, got %v", cfg.RetryWaitMax)
	}
	if cfg.UseOptimisticConcurrency {
		t.Error("expected optimistic concurrency to be off by default")
	}
}

func TestNew_NoServerURL(t *testing.T) {
	_, err := store.New(store.DefaultConfig())
	if err == nil {
		t.Fatal("expected error when no server url is configured")
	}
	if !errors.Is(err, store.ErrNoServerURL) {
		t.Errorf("expected ErrNoServerURL, got %v", err)
	}
	var cfgErr *store.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected *ConfigError, got %T", err)
	}
}

func TestOpen_EmptyURL(t *testing.T) {
	if _, err := store.Open(""); !errors.Is(err, store.ErrNoServerURL) {
		t.Errorf("expected ErrNoServerURL, got %v", err)
	}
}

func TestOpen_String(t *testing.T) {
	s, err := store.Open("http://localhost:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BaseURL() != "http://localhost:8080" {
		t.Errorf("expected 'http://localhost:8080', got %q", s.BaseURL())
	}
}

func TestNew_ServerURLOption(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ServerURL = "http://localhost:8080"

	if _, err := store.New(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_DatabaseName(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ServerURL = "http://localhost:8080"
	cfg.DatabaseName = "testing"

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BaseURL() != "http://localhost:8080/databases/testing" {
		t.Errorf("expected 'http://localhost:8080/databases/testing', got %q", s.BaseURL())
	}
	if s.ServerURL() != "http://localhost:8080" {
		t.Errorf("expected ServerURL 'http://localhost:8080', got %q", s.ServerURL())
	}
	if s.Database() != "testing" {
		t.Errorf("expected Database 'testing', got %q", s.Database())
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	tests := []struct {
		name string
		cfg  store.Config
		want string
	}{
		{"server url", store.Config{ServerURL: "http://localhost:8080/"}, "http://localhost:8080"},
		{"connection string", store.Config{ConnectionString: "Url=http://localhost:8080/"}, "http://localhost:8080"},
		{"with database", store.Config{ServerURL: "http://localhost:8080/", DatabaseName: "db"}, "http://localhost:8080/databases/db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := store.New(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if s.BaseURL() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, s.BaseURL())
			}
		})
	}
}

func TestNew_ConnectionString(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ConnectionString = "Url=http://raven:8080;Database=Northwind;UseOptimisticConcurrency=true"

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BaseURL() != "http://raven:8080/databases/Northwind" {
		t.Errorf("expected 'http://raven:8080/databases/Northwind', got %q", s.BaseURL())
	}
	if !s.UseOptimisticConcurrency() {
		t.Error("expected optimistic concurrency from connection string")
	}
}

func TestNew_ExplicitFieldsOverrideConnectionString(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ConnectionString = "Url=http://raven:8080;Database=Northwind"
	cfg.ServerURL = "http://other:9090"
	cfg.DatabaseName = "Sales"

	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BaseURL() != "http://other:9090/databases/Sales" {
		t.Errorf("expected 'http://other:9090/databases/Sales', got %q", s.BaseURL())
	}
}

func TestNew_MalformedConnectionString(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.ConnectionString = "Url=http://raven:8080;garbage"

	_, err := store.New(cfg)
	var cfgErr *store.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if cfgErr.Field != "ConnectionString" {
		t.Errorf("expected Field 'ConnectionString', got %q", cfgErr.Field)
	}
}

func TestParseConnectionString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected store.ConnectionString
	}{
		{
			name:     "url only",
			input:    "Url=http://localhost:8080",
			expected: store.ConnectionString{URL: "http://localhost:8080"},
		},
		{
			name:     "semicolons",
			input:    "Url=http://localhost:8080;Database=Northwind",
			expected: store.ConnectionString{URL: "http://localhost:8080", Database: "Northwind"},
		},
		{
			name:     "commas and spaces",
			input:    " Url = http://localhost:8080 , Database = Northwind ",
			expected: store.ConnectionString{URL: "http://localhost:8080", Database: "Northwind"},
		},
		{
			name:     "case insensitive keys",
			input:    "url=http://h;DATABASE=d;useoptimisticconcurrency=True",
			expected: store.ConnectionString{URL: "http://h", Database: "d", UseOptimisticConcurrency: true},
		},
		{
			name:     "unknown keys ignored",
			input:    "Url=http://h;ApiKey=secret;",
			expected: store.ConnectionString{URL: "http://h"},
		},
		{
			name:     "empty",
			input:    "",
			expected: store.ConnectionString{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := store.ParseConnectionString(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cs != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, cs)
			}
		})
	}
}

func TestParseConnectionString_InvalidBool(t *testing.T) {
	if _, err := store.ParseConnectionString("Url=http://h;UseOptimisticConcurrency=maybe"); err == nil {
		t.Error("expected error for invalid boolean")
	}
}

func TestConnectionString_String(t *testing.T) {
	cs := store.ConnectionString{URL: "http://h", Database: "d", UseOptimisticConcurrency: true}
	if got := cs.String(); got != "Url=http://h;Database=d;UseOptimisticConcurrency=true" {
		t.Errorf("unexpected connection string %q", got)
	}

	parsed, err := store.ParseConnectionString(cs.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != cs {
		t.Errorf("expected %+v, got %+v", cs, parsed)
	}
}

func TestUseDatabase(t *testing.T) {
	s, err := store.Open("http://localhost:8080")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	oldURL := s.BaseURL()

	s.UseDatabase("testing")
	if s.BaseURL() == oldURL {
		t.Errorf("expected base url to change from %q", oldURL)
	}
	if s.BaseURL() != "http://localhost:8080/databases/testing" {
		t.Errorf("expected 'http://localhost:8080/databases/testing', got %q", s.BaseURL())
	}

	s.UseDatabase("other")
	if s.BaseURL() != "http://localhost:8080/databases/other" {
		t.Errorf("expected 'http://localhost:8080/databases/other', got %q", s.BaseURL())
	}

	s.UseDatabase("")
	if s.BaseURL() != oldURL {
		t.Errorf("expected empty name to restore %q, got %q", oldURL, s.BaseURL())
	}
}
