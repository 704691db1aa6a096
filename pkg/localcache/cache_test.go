package localcache

import "testing"

func TestNewIsEmpty(t *testing.T) {
	c := New()
	snap := c.Snapshot()
	if len(snap.Keys) != 0 {
		t.Fatalf("expected empty cache, got %d keys", len(snap.Keys))
	}
	if snap.Version != 0 {
		t.Fatalf("expected version 0, got %d", snap.Version)
	}
}

func TestReplaceAndGet(t *testing.T) {
	c := New()
	c.Replace(map[string]string{
		"subsystem_nqn.test": `{"nqn":"nqn.test"}`,
		"host_nqn.test_*":    `{}`,
	}, 3)

	v, ok := c.Get("subsystem_nqn.test")
	if !ok || v != `{"nqn":"nqn.test"}` {
		t.Fatalf("Get returned (%q, %v)", v, ok)
	}
	if c.Version() != 3 {
		t.Fatalf("expected version 3, got %d", c.Version())
	}
}

func TestSnapshotIsolationAcrossReplace(t *testing.T) {
	c := New()
	c.Replace(map[string]string{"a": "1"}, 1)
	snap1 := c.Snapshot()

	c.Replace(map[string]string{"a": "2"}, 2)
	snap2 := c.Snapshot()

	if snap1.Keys["a"] != "1" {
		t.Fatalf("expected snap1 to remain unaffected by later Replace, got %q", snap1.Keys["a"])
	}
	if snap2.Keys["a"] != "2" {
		t.Fatalf("expected snap2 to reflect new value, got %q", snap2.Keys["a"])
	}
}

func TestByPrefix(t *testing.T) {
	c := New()
	c.Replace(map[string]string{
		"subsystem_nqn.a": "1",
		"subsystem_nqn.b": "2",
		"host_nqn.a_*":    "3",
	}, 1)

	snap := c.Snapshot()
	subs := snap.ByPrefix("subsystem_")
	if len(subs) != 2 {
		t.Fatalf("expected 2 subsystem keys, got %d", len(subs))
	}
}

func TestSortedKeys(t *testing.T) {
	c := New()
	c.Replace(map[string]string{
		"subsystem_b": "2",
		"subsystem_a": "1",
	}, 1)

	snap := c.Snapshot()
	keys := snap.SortedKeys("subsystem_")
	if len(keys) != 2 || keys[0] != "subsystem_a" || keys[1] != "subsystem_b" {
		t.Fatalf("expected sorted [subsystem_a subsystem_b], got %v", keys)
	}
}
