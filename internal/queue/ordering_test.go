package queue

import (
	"testing"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
)

func slot(num, den int64, emergency bool) WaitingSlot {
	return WaitingSlot{Key: models.OrderKey{Num: num, Den: den}, Emergency: emergency}
}

func TestNextKeyEmptyPartition(t *testing.T) {
	got := NextKey(nil, false)
	if !got.Equal(models.IntKey(1)) {
		t.Fatalf("first entry should get key 1, got %s", got)
	}
	got = NextKey(nil, true)
	if !got.Equal(models.IntKey(1)) {
		t.Fatalf("first emergency in empty partition should get key 1, got %s", got)
	}
}

func TestNextKeyNormalAppends(t *testing.T) {
	waiting := []WaitingSlot{slot(1, 1, false), slot(2, 1, false)}
	got := NextKey(waiting, false)
	if !got.Equal(models.IntKey(3)) {
		t.Fatalf("normal arrival should append max+1, got %s", got)
	}
}

func TestNextKeyEmergencyHalvesFront(t *testing.T) {
	waiting := []WaitingSlot{slot(1, 1, false), slot(2, 1, false)}
	got := NextKey(waiting, true)
	want := models.OrderKey{Num: 1, Den: 2}
	if !got.Equal(want) {
		t.Fatalf("emergency with no waiting emergencies should get min/2 = %s, got %s", want, got)
	}
}

func TestNextKeyEmergenciesKeepArrivalOrder(t *testing.T) {
	// e1 already waiting at 1/2 ahead of normals at 1 and 2. A second
	// emergency must land between e1 and the first normal, not ahead
	// of e1.
	waiting := []WaitingSlot{slot(1, 2, true), slot(1, 1, false), slot(2, 1, false)}
	got := NextKey(waiting, true)
	want := models.OrderKey{Num: 3, Den: 4}
	if !got.Equal(want) {
		t.Fatalf("second emergency should get %s, got %s", want, got)
	}
	if !waiting[0].Key.Less(got) {
		t.Fatalf("second emergency must sort after the first")
	}
	if !got.Less(waiting[1].Key) {
		t.Fatalf("second emergency must sort before the first normal")
	}
}

func TestNextKeyAllEmergenciesAppends(t *testing.T) {
	waiting := []WaitingSlot{slot(1, 1, true), slot(2, 1, true)}
	got := NextKey(waiting, true)
	if !got.Equal(models.IntKey(3)) {
		t.Fatalf("emergency behind only emergencies should append, got %s", got)
	}
}

func TestNextKeyCollidedGapGoesToFront(t *testing.T) {
	// Hold and return reuse keys, so a waiting emergency can share a key
	// with (or exceed) a waiting normal. With no gap left between them,
	// precedence over normals wins and the new emergency goes first.
	waiting := []WaitingSlot{slot(1, 1, true), slot(1, 1, false)}
	got := NextKey(waiting, true)
	want := models.OrderKey{Num: 1, Den: 2}
	if !got.Equal(want) {
		t.Fatalf("collided gap should front-insert at %s, got %s", want, got)
	}

	waiting = []WaitingSlot{slot(2, 1, true), slot(1, 1, false)}
	got = NextKey(waiting, true)
	if !got.Less(waiting[1].Key) {
		t.Fatalf("emergency must sort before the waiting normal, got %s", got)
	}
}

func TestNeedsRenumber(t *testing.T) {
	if NeedsRenumber(nil, true) {
		t.Fatalf("empty partition never needs renumbering")
	}
	if NeedsRenumber([]WaitingSlot{slot(1, 2, true), slot(1, 1, false)}, true) {
		t.Fatalf("open gap needs no renumbering")
	}
	if !NeedsRenumber([]WaitingSlot{slot(1, 1, true), slot(1, 1, false)}, true) {
		t.Fatalf("equal emergency and normal keys must trigger renumbering")
	}
	if NeedsRenumber([]WaitingSlot{slot(1, 1, true), slot(1, 1, false)}, false) {
		t.Fatalf("normal arrivals append and never need renumbering for gaps")
	}

	deep := []WaitingSlot{slot(1, models.MaxDenominator, false), slot(1, 1, false)}
	if !NeedsRenumber(deep, true) {
		t.Fatalf("halving past the denominator bound must trigger renumbering")
	}
}

func TestRenumberKeys(t *testing.T) {
	keys := RenumberKeys(3)
	for i, key := range keys {
		if !key.Equal(models.IntKey(int64(i + 1))) {
			t.Fatalf("position %d renumbered to %s", i, key)
		}
	}
	if len(RenumberKeys(0)) != 0 {
		t.Fatalf("renumbering an empty partition should yield no keys")
	}
}
