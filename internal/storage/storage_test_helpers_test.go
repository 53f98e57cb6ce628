package storage_test

import (
	"testing"
	"time"
)

func fixedTime(t *testing.T) time.Time {
	t.Helper()

	tm, err := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}

	return tm
}
