package hilo

// Config holds configuration for a Generator.
type Config struct {
	// TableName is the DynamoDB table holding the counters. Its partition
	// key is the string attribute "pk".
	TableName string

	// Scope separates counters of different databases sharing one table.
	// Typically the database name.
	Scope string

	// Capacity is the number of ids reserved per round trip.
	Capacity int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName: "ravenstore_hilo",
		Capacity:  32,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "ravenstore_hilo"
	}
	if c.Capacity <= 0 {
		c.Capacity = 32
	}
}
