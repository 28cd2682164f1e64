package selector

import "testing"

func TestGlobal_IsGlobal(t *testing.T) {
	if !Global.IsGlobal() {
		t.Fatal("expected Global to report IsGlobal")
	}
	if got := Global.FastStoreKey(42); got != "l0:42" {
		t.Fatalf("unexpected global key: %s", got)
	}
	if got := Global.String(); got != "global" {
		t.Fatalf("unexpected global string: %s", got)
	}
}

func TestEdition_IsNotGlobal(t *testing.T) {
	id := Edition(7, 3)
	if id.IsGlobal() {
		t.Fatal("expected edition identity to not report IsGlobal")
	}
	if got := id.FastStoreKey(42); got != "le:7:3:42" {
		t.Fatalf("unexpected edition key: %s", got)
	}
	if got := id.String(); got != "event(7,3)" {
		t.Fatalf("unexpected edition string: %s", got)
	}
}

func TestZeroValueIdentityIsGlobal(t *testing.T) {
	var id Identity
	if !id.IsGlobal() {
		t.Fatal("expected zero-value Identity to be the global leaderboard")
	}
}
