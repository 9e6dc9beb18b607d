package queue

import "github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"

// WaitingSlot is the view of a waiting entry the ordering policy needs:
// its key and whether it joined as an emergency.
type WaitingSlot struct {
	Key       models.OrderKey
	Emergency bool
}

type slotStats struct {
	minKey       models.OrderKey
	maxKey       models.OrderKey
	maxEmergency models.OrderKey
	minNormal    models.OrderKey
	hasEmergency bool
	hasNormal    bool
}

func scanSlots(waiting []WaitingSlot) slotStats {
	stats := slotStats{minKey: waiting[0].Key, maxKey: waiting[0].Key}
	for _, slot := range waiting {
		if slot.Key.Less(stats.minKey) {
			stats.minKey = slot.Key
		}
		if stats.maxKey.Less(slot.Key) {
			stats.maxKey = slot.Key
		}
		if slot.Emergency {
			if !stats.hasEmergency || stats.maxEmergency.Less(slot.Key) {
				stats.maxEmergency = slot.Key
			}
			stats.hasEmergency = true
		} else {
			if !stats.hasNormal || slot.Key.Less(stats.minNormal) {
				stats.minNormal = slot.Key
			}
			stats.hasNormal = true
		}
	}
	return stats
}

// emergencyGapClosed reports whether no key fits strictly between the
// waiting emergencies and the waiting normals. Hold and return reuse
// keys, so an emergency's key can equal or exceed a normal's.
func (s slotStats) emergencyGapClosed() bool {
	return s.hasEmergency && s.hasNormal && !s.maxEmergency.Less(s.minNormal)
}

// NextKey computes the insertion key for a new entry given a snapshot of
// the partition's waiting entries. Callers must hold the partition's
// write serialization while the snapshot is taken and the key is used.
//
// Normal arrivals append after the last waiting entry. Emergencies land
// ahead of every waiting non-emergency but behind waiting emergencies,
// so emergencies stay in arrival order among themselves. With no waiting
// emergencies the key is half the minimum waiting key, which keeps the
// historical front-insert values (0.5 ahead of 1) observable. When hold
// and return have collapsed the gap between emergencies and normals
// (see NeedsRenumber), precedence over normals wins and the entry goes
// to the very front.
func NextKey(waiting []WaitingSlot, emergency bool) models.OrderKey {
	if len(waiting) == 0 {
		return models.IntKey(1)
	}

	stats := scanSlots(waiting)
	if !emergency {
		return stats.maxKey.Plus(1)
	}
	if !stats.hasEmergency {
		return stats.minKey.Half()
	}
	if !stats.hasNormal {
		// Everyone waiting is an emergency; appending keeps arrival order.
		return stats.maxKey.Plus(1)
	}
	if stats.maxEmergency.Less(stats.minNormal) {
		return stats.maxEmergency.Midpoint(stats.minNormal)
	}
	return stats.minKey.Half()
}

// NeedsRenumber reports whether the partition should be renumbered
// before inserting: either the computed key has outgrown the
// denominator bound, or an emergency insertion finds no room strictly
// between the waiting emergencies and normals. Renumbering restores
// integer keys in the current order; NextKey on the fresh snapshot then
// yields a clean position.
func NeedsRenumber(waiting []WaitingSlot, emergency bool) bool {
	if len(waiting) == 0 {
		return false
	}
	if NextKey(waiting, emergency).Overflowed() {
		return true
	}
	return emergency && scanSlots(waiting).emergencyGapClosed()
}

// RenumberKeys returns consecutive integer keys 1..n for a partition of
// n entries already sorted by (orderKey, createdAt). Relative order is
// unchanged.
func RenumberKeys(n int) []models.OrderKey {
	keys := make([]models.OrderKey, n)
	for i := range keys {
		keys[i] = models.IntKey(int64(i + 1))
	}
	return keys
}
