package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStationLockKey(t *testing.T) {
	t.Run("distinct beyond 32 bits", func(t *testing.T) {
		// Ids that collide when truncated to int32 must not share a key.
		assert.NotEqual(t, stationLockKey(7), stationLockKey(7+(1<<32)))
		assert.NotEqual(t, stationLockKey(0), stationLockKey(1<<32))
	})

	t.Run("distinct for neighbors", func(t *testing.T) {
		seen := make(map[int64]int64)
		for _, id := range []int64{1, 2, 3, 1 << 31, (1 << 31) + 1, 1 << 33} {
			key := stationLockKey(id)
			if prev, ok := seen[key]; ok {
				t.Fatalf("ids %d and %d share lock key %d", prev, id, key)
			}
			seen[key] = id
		}
	})

	t.Run("carries the class", func(t *testing.T) {
		assert.Equal(t, int64(stationLockClass), stationLockKey(0)>>32)
	})
}
