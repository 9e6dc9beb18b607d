package queue

import "testing"

func TestFirstFreeRoom(t *testing.T) {
	cases := []struct {
		name     string
		universe []string
		occupied []string
		want     string
		ok       bool
	}{
		{"all free", []string{"A1", "A2"}, nil, "A1", true},
		{"first taken", []string{"A1", "A2"}, []string{"A1"}, "A2", true},
		{"all taken", []string{"A1", "A2"}, []string{"A2", "A1"}, "", false},
		{"empty universe", nil, []string{"A1"}, "", false},
		{"blank rooms skipped", []string{"", "A1"}, nil, "A1", true},
		{"listing order wins", []string{"B9", "A1"}, nil, "B9", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FirstFreeRoom(tc.universe, tc.occupied)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("FirstFreeRoom(%v, %v) = (%q, %v), want (%q, %v)",
					tc.universe, tc.occupied, got, ok, tc.want, tc.ok)
			}
		})
	}
}
