package queue

// FirstFreeRoom returns the first room in directory listing order that
// is not held by a calling or processing entry. Deterministic for a
// fixed directory ordering; no preference or randomness.
func FirstFreeRoom(universe []string, occupied []string) (string, bool) {
	taken := make(map[string]struct{}, len(occupied))
	for _, room := range occupied {
		taken[room] = struct{}{}
	}
	for _, room := range universe {
		if room == "" {
			continue
		}
		if _, ok := taken[room]; !ok {
			return room, true
		}
	}
	return "", false
}
