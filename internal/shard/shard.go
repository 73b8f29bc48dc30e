// Package shard provides partition keys for the HiLo counter table.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CounterPK computes the partition key of a collection's counter.
// Keys are hashed so that counters of many collections spread across
// partitions; scope separates counters of different databases sharing a table.
func CounterPK(scope, collection string) string {
	data := fmt.Sprintf("%s#%s", scope, collection)
	h := sha256.Sum256([]byte(data))
	return "hilo#" + hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
