package pgs

import "testing"

func TestBuildSubsystemKey(t *testing.T) {
	got := BuildSubsystemKey("nqn.2016-06.io.spdk:cnode1")
	want := "subsystem_nqn.2016-06.io.spdk:cnode1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildNamespaceKey(t *testing.T) {
	got := BuildNamespaceKey("nqn.test", 1)
	want := "namespace_nqn.test_1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildHostKeyWildcard(t *testing.T) {
	got := BuildHostKey("nqn.test", "*")
	want := "host_nqn.test_*"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildListenerKey(t *testing.T) {
	got := BuildListenerKey("nqn.test", "gw0", "TCP", "10.0.0.1", "4420")
	want := "listener_nqn.test_gw0_TCP_10.0.0.1_4420"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrefixOrderMatchesSpec(t *testing.T) {
	want := []string{SubsystemPrefix, NamespacePrefix, NamespaceQoSPrefix, HostPrefix, ListenerPrefix}
	if len(PrefixOrder) != len(want) {
		t.Fatalf("unexpected PrefixOrder length")
	}
	for i, p := range want {
		if PrefixOrder[i] != p {
			t.Fatalf("PrefixOrder[%d] = %q, want %q", i, PrefixOrder[i], p)
		}
	}
}

func TestReversedPrefixOrder(t *testing.T) {
	rev := ReversedPrefixOrder()
	if rev[0] != ListenerPrefix || rev[len(rev)-1] != SubsystemPrefix {
		t.Fatalf("unexpected reversed order: %v", rev)
	}
}
