// Package memory implements the entry store as an in-process arena of
// entries with a per-partition lock, the deployment used by tests and
// single-node installs without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/queue"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	entries   map[string]models.QueueEntry
	patients  map[string]models.Patient
	providers []models.Provider
	sessions  map[string]store.Session

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		entries:  make(map[string]models.QueueEntry),
		patients: make(map[string]models.Patient),
		sessions: make(map[string]store.Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// partitionLock returns the mutex serializing writers of one
// (department, stage) partition. Always acquired before s.mu, and
// never two partitions at once except Complete taking the next stage's
// lock while no other is held.
func (s *Store) partitionLock(departmentID, stage string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	key := departmentID + "/" + stage
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) SeedPatient(p models.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.PatientID] = p
}

func (s *Store) SeedProvider(p models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, p)
}

func (s *Store) SeedSession(sess store.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
}

func (s *Store) GetPatient(_ context.Context, patientID string) (models.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[patientID]
	if !ok {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return p, nil
}

func (s *Store) ListProviders(_ context.Context, departmentID, stage string) ([]models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Provider
	for _, p := range s.providers {
		if p.DepartmentID == departmentID && p.Stage == stage {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return store.Session{}, store.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) Register(ctx context.Context, input store.RegisterInput) (models.QueueEntry, bool, error) {
	patient, err := s.GetPatient(ctx, input.PatientID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	departmentID := input.DepartmentID
	if departmentID == "" {
		departmentID = patient.DepartmentID
	}
	if departmentID != patient.DepartmentID {
		return models.QueueEntry{}, false, store.ErrDepartmentMismatch
	}
	stage := input.Stage
	if stage == "" {
		stage = models.StageOptometrist
	}
	if !models.ValidStage(stage) {
		return models.QueueEntry{}, false, store.ErrInvalidStage
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	lock := s.partitionLock(departmentID, stage)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.activeEntry(patient.PatientID, stage); ok {
		return existing, false, nil
	}
	entry := models.QueueEntry{
		EntryID:      uuid.NewString(),
		PatientID:    patient.PatientID,
		DepartmentID: departmentID,
		Stage:        stage,
		Status:       models.StatusWaiting,
		Emergency:    patient.Emergency,
		OrderKey:     s.insertionKey(departmentID, stage, patient.Emergency),
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	s.entries[entry.EntryID] = entry
	return entry, true, nil
}

func (s *Store) GetEntry(_ context.Context, entryID string) (models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	return entry, nil
}

func (s *Store) ListQueue(_ context.Context, departmentID, stage string) ([]models.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.partitionEntries(departmentID, stage, models.ActiveStatuses)
	return out, nil
}

func (s *Store) CallNext(_ context.Context, input store.CallNextInput) (models.QueueEntry, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	lock := s.partitionLock(input.DepartmentID, input.Stage)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := s.partitionEntries(input.DepartmentID, input.Stage, []string{models.StatusWaiting})
	if len(waiting) == 0 {
		return models.QueueEntry{}, store.ErrNoCapacity
	}

	var universe []string
	for _, p := range s.providers {
		if p.DepartmentID == input.DepartmentID && p.Stage == input.Stage {
			universe = append(universe, p.Room)
		}
	}
	var occupied []string
	for _, e := range s.partitionEntries(input.DepartmentID, input.Stage, []string{models.StatusCalling, models.StatusProcessing}) {
		if e.Room != nil {
			occupied = append(occupied, *e.Room)
		}
	}
	room, ok := queue.FirstFreeRoom(universe, occupied)
	if !ok {
		return models.QueueEntry{}, store.ErrNoCapacity
	}

	entry := waiting[0]
	entry.Status = models.StatusCalling
	entry.Room = &room
	entry.UpdatedAt = calledAt
	s.entries[entry.EntryID] = entry
	return entry, nil
}

func (s *Store) StartProcessing(_ context.Context, input store.ActionInput) (models.QueueEntry, error) {
	// No status guard: processing is reachable from any status, hold
	// and completed included, matching the system this replaces.
	return s.updateEntry(input, func(entry *models.QueueEntry) {
		entry.Status = models.StatusProcessing
	})
}

func (s *Store) Hold(_ context.Context, input store.ActionInput) (models.QueueEntry, error) {
	return s.updateEntry(input, func(entry *models.QueueEntry) {
		entry.Status = models.StatusHold
		entry.Room = nil
	})
}

func (s *Store) ReturnToQueue(_ context.Context, input store.ActionInput) (models.QueueEntry, error) {
	// OrderKey deliberately untouched: the patient resumes their
	// original slot, ahead of anyone who joined after them.
	return s.updateEntry(input, func(entry *models.QueueEntry) {
		entry.Status = models.StatusWaiting
		entry.Room = nil
	})
}

func (s *Store) Complete(ctx context.Context, input store.ActionInput) (models.QueueEntry, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	current, err := s.GetEntry(ctx, input.EntryID)
	if err != nil {
		return models.QueueEntry{}, err
	}

	nextStage := models.NextStage(current.Stage)
	if nextStage != "" {
		lock := s.partitionLock(current.DepartmentID, nextStage)
		lock.Lock()
		defer lock.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	entry.Status = models.StatusCompleted
	entry.Room = nil
	entry.UpdatedAt = occurredAt
	s.entries[entry.EntryID] = entry

	if nextStage != "" {
		if _, active := s.activeEntry(entry.PatientID, nextStage); !active {
			emergency := entry.Emergency
			if patient, ok := s.patients[entry.PatientID]; ok {
				emergency = patient.Emergency
			}
			next := models.QueueEntry{
				EntryID:      uuid.NewString(),
				PatientID:    entry.PatientID,
				DepartmentID: entry.DepartmentID,
				Stage:        nextStage,
				Status:       models.StatusWaiting,
				Emergency:    emergency,
				OrderKey:     s.insertionKey(entry.DepartmentID, nextStage, emergency),
				CreatedAt:    occurredAt,
				UpdatedAt:    occurredAt,
			}
			s.entries[next.EntryID] = next
		}
	}
	return entry, nil
}

func (s *Store) AutoReturn(_ context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := time.Now().UTC().Add(-grace)

	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []models.QueueEntry
	for _, entry := range s.entries {
		if entry.Status == models.StatusCalling && !entry.UpdatedAt.After(cutoff) {
			stale = append(stale, entry)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].UpdatedAt.Before(stale[j].UpdatedAt) })
	if len(stale) > batchSize {
		stale = stale[:batchSize]
	}
	for _, entry := range stale {
		entry.Status = models.StatusWaiting
		entry.Room = nil
		entry.UpdatedAt = time.Now().UTC()
		s.entries[entry.EntryID] = entry
	}
	return len(stale), nil
}

func (s *Store) updateEntry(input store.ActionInput, mutate func(*models.QueueEntry)) (models.QueueEntry, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[input.EntryID]
	if !ok {
		return models.QueueEntry{}, store.ErrEntryNotFound
	}
	mutate(&entry)
	entry.UpdatedAt = occurredAt
	s.entries[entry.EntryID] = entry
	return entry, nil
}

// insertionKey computes the order key for a new entry, renumbering the
// partition first when the fraction depth is exhausted or an emergency
// finds no gap ahead of the waiting normals. Callers hold both the
// partition lock and s.mu.
func (s *Store) insertionKey(departmentID, stage string, emergency bool) models.OrderKey {
	slots := s.waitingSlots(departmentID, stage)
	if queue.NeedsRenumber(slots, emergency) {
		s.renumberPartition(departmentID, stage)
		slots = s.waitingSlots(departmentID, stage)
	}
	return queue.NextKey(slots, emergency)
}

func (s *Store) waitingSlots(departmentID, stage string) []queue.WaitingSlot {
	var slots []queue.WaitingSlot
	for _, e := range s.partitionEntries(departmentID, stage, []string{models.StatusWaiting}) {
		slots = append(slots, queue.WaitingSlot{Key: e.OrderKey, Emergency: e.Emergency})
	}
	return slots
}

// renumberPartition rewrites waiting and hold entries to consecutive
// integer keys, preserving order. Hold entries are included so a later
// return-to-queue still lands in the original relative slot.
func (s *Store) renumberPartition(departmentID, stage string) {
	entries := s.partitionEntries(departmentID, stage, []string{models.StatusWaiting, models.StatusHold})
	keys := queue.RenumberKeys(len(entries))
	for i, entry := range entries {
		entry.OrderKey = keys[i]
		s.entries[entry.EntryID] = entry
	}
}

// partitionEntries returns the partition's entries with one of the
// given statuses, sorted by (orderKey, createdAt, entryID).
func (s *Store) partitionEntries(departmentID, stage string, statuses []string) []models.QueueEntry {
	allowed := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		allowed[status] = struct{}{}
	}
	var out []models.QueueEntry
	for _, entry := range s.entries {
		if entry.DepartmentID != departmentID || entry.Stage != stage {
			continue
		}
		if _, ok := allowed[entry.Status]; !ok {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderKey.Equal(out[j].OrderKey) {
			return out[i].OrderKey.Less(out[j].OrderKey)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

func (s *Store) activeEntry(patientID, stage string) (models.QueueEntry, bool) {
	for _, entry := range s.entries {
		if entry.PatientID != patientID || entry.Stage != stage {
			continue
		}
		switch entry.Status {
		case models.StatusWaiting, models.StatusCalling, models.StatusProcessing:
			return entry, true
		}
	}
	return models.QueueEntry{}, false
}
