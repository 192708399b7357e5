package pgcache

import (
	"testing"
	"time"
)

func TestGetOrParseCachesOnFirstCall(t *testing.T) {
	c, err := New(4, time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	const sql = "SELECT * FROM t WHERE a = $1"
	stmt, err := c.GetOrParse(sql)
	if err != nil {
		t.Fatalf("GetOrParse failed: %v", err)
	}
	if stmt.PositionalParameterCount() != 1 {
		t.Fatalf("expected 1 positional parameter, got %d", stmt.PositionalParameterCount())
	}

	// Small delay to allow the underlying sharded store's async set to
	// complete, matching the teacher's own cache test timing.
	time.Sleep(10 * time.Millisecond)

	cached, ok := c.Get(sql)
	if !ok {
		t.Fatalf("expected a cache hit for %q", sql)
	}
	if cached != stmt {
		t.Fatalf("expected GetOrParse's cached plan to be returned by Get")
	}
}

func TestGetMissWithoutPut(t *testing.T) {
	c, err := New(4, time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.Get("SELECT 1"); ok {
		t.Fatalf("expected a miss for an uncached statement")
	}
}

func TestDeleteEvictsEntry(t *testing.T) {
	c, err := New(4, time.Minute)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	const sql = "SELECT 1"
	if _, err := c.GetOrParse(sql); err != nil {
		t.Fatalf("GetOrParse failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	c.Delete(sql)
	if _, ok := c.Get(sql); ok {
		t.Fatalf("expected Get to miss after Delete")
	}
}
