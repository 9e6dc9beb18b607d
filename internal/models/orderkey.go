package models

import (
	"encoding/json"
	"fmt"
	"math"
)

// OrderKey is the sort position of an entry within a (department, stage)
// partition. It is an exact dyadic rational num/den with den a power of
// two, so halving and midpoints never lose precision the way a raw
// float64 does under repeated front insertions. MaxDenominator bounds
// how deep the fractions may go before the partition is renumbered.
type OrderKey struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// MaxDenominator is the renumbering threshold. A freshly renumbered
// partition uses integer keys, so this allows 20 consecutive front
// insertions between renumber passes.
const MaxDenominator = int64(1) << 20

// IntKey returns the key for a whole-number position.
func IntKey(n int64) OrderKey {
	return OrderKey{Num: n, Den: 1}
}

func (k OrderKey) normalized() OrderKey {
	if k.Den <= 0 {
		k.Den = 1
	}
	for k.Num%2 == 0 && k.Den > 1 {
		k.Num /= 2
		k.Den /= 2
	}
	return k
}

// Plus returns the key n whole positions after k.
func (k OrderKey) Plus(n int64) OrderKey {
	k = k.normalized()
	return OrderKey{Num: k.Num + n*k.Den, Den: k.Den}
}

// Half returns k/2, the position ahead of everything at or after k.
func (k OrderKey) Half() OrderKey {
	k = k.normalized()
	return OrderKey{Num: k.Num, Den: k.Den * 2}.normalized()
}

// Midpoint returns the key exactly between k and other.
func (k OrderKey) Midpoint(other OrderKey) OrderKey {
	a, b := k.normalized(), other.normalized()
	l := a.Den
	if b.Den > l {
		l = b.Den
	}
	num := a.Num*(l/a.Den) + b.Num*(l/b.Den)
	return OrderKey{Num: num, Den: 2 * l}.normalized()
}

// Less reports whether k sorts before other.
func (k OrderKey) Less(other OrderKey) bool {
	a, b := k.normalized(), other.normalized()
	l := a.Den
	if b.Den > l {
		l = b.Den
	}
	return a.Num*(l/a.Den) < b.Num*(l/b.Den)
}

func (k OrderKey) Equal(other OrderKey) bool {
	a, b := k.normalized(), other.normalized()
	return a.Num == b.Num && a.Den == b.Den
}

// Overflowed reports whether the key has outgrown the denominator bound
// and the partition should be renumbered before it is used.
func (k OrderKey) Overflowed() bool {
	return k.normalized().Den > MaxDenominator
}

func (k OrderKey) Float64() float64 {
	k = k.normalized()
	return float64(k.Num) / float64(k.Den)
}

func (k OrderKey) String() string {
	k = k.normalized()
	if k.Den == 1 {
		return fmt.Sprintf("%d", k.Num)
	}
	return fmt.Sprintf("%d/%d", k.Num, k.Den)
}

// MarshalJSON renders the key as a plain number. Dyadic rationals within
// the denominator bound are exactly representable as float64.
func (k OrderKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Float64())
}

func (k *OrderKey) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	parsed, err := KeyFromFloat(f)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KeyFromFloat converts a dyadic float back into an exact key. Values
// whose fraction is deeper than the denominator bound are rejected.
func KeyFromFloat(f float64) (OrderKey, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return OrderKey{}, fmt.Errorf("order key must be finite, got %v", f)
	}
	den := int64(1)
	for f != math.Trunc(f) {
		if den > MaxDenominator {
			return OrderKey{}, fmt.Errorf("order key fraction too deep: %v", f)
		}
		f *= 2
		den *= 2
	}
	return OrderKey{Num: int64(f), Den: den}.normalized(), nil
}
