package database

import (
	"testing"
	"time"
)

// TestResourceConfigRepository_NewResourceConfigRepository tests repository creation.
func TestResourceConfigRepository_NewResourceConfigRepository(t *testing.T) {
	db := &DB{}
	repo := NewResourceConfigRepository(db)

	if repo == nil {
		t.Fatal("expected repository to be created, got nil")
	}

	if repo.db != db {
		t.Error("expected repository to hold reference to DB")
	}
}

// TestModels_ResourceLimitStructure tests the resource limit model.
func TestModels_ResourceLimitStructure(t *testing.T) {
	rl := ResourceLimit{
		ID:        "limit-1",
		Resource:  "public-api",
		LimitType: "rpm",
		N:         1000,
		WindowMs:  time.Minute.Milliseconds(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if rl.Resource == "" {
		t.Error("resource limit should have a resource name")
	}

	if rl.N <= 0 {
		t.Error("a stored resource limit should have a positive N")
	}

	if rl.WindowMs != 60000 {
		t.Errorf("expected window_ms 60000 for a one-minute window, got %d", rl.WindowMs)
	}
}
