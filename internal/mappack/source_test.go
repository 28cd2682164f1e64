package mappack

import (
	"context"
	"testing"

	"github.com/speedrun-hub/obstacle-engine/internal/faststore"
)

func TestRegisterMX_AddsPackAndMapsToFastStore(t *testing.T) {
	fs := faststore.NewFake()
	ctx := context.Background()

	if err := RegisterMX(ctx, fs, "pack-1", []string{"MapA", "MapB"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := fs.SMembers(ctx, mappacksSetKey)
	if err != nil {
		t.Fatalf("unexpected error reading registry set: %v", err)
	}
	if len(ids) != 1 || ids[0] != "pack-1" {
		t.Fatalf("expected [pack-1] registered, got %v", ids)
	}

	uids, err := fs.SMembers(ctx, mapsKey("pack-1"))
	if err != nil {
		t.Fatalf("unexpected error reading pack maps: %v", err)
	}
	if len(uids) != 2 {
		t.Fatalf("expected 2 map uids, got %v", uids)
	}
}

func TestRegisterMX_EmptyMapSetStillRegistersPack(t *testing.T) {
	fs := faststore.NewFake()
	ctx := context.Background()

	if err := RegisterMX(ctx, fs, "pack-empty", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := fs.SMembers(ctx, mappacksSetKey)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "pack-empty" {
		t.Fatalf("expected [pack-empty] registered, got %v", ids)
	}
}
