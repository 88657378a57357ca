package memory

import (
	"testing"

	"fx-signal-lab/internal/storage"
	"fx-signal-lab/internal/storage/storagetest"
)

func TestStatisticsStore(t *testing.T) {
	storagetest.StatisticsStoreTests(t, func(*testing.T) storage.StatisticsStore {
		return NewStatisticsStore()
	})
}
