package store

import (
	"context"
	"time"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
)

type RegisterInput struct {
	PatientID    string
	DepartmentID string
	Stage        string
	CreatedAt    time.Time
}

type CallNextInput struct {
	DepartmentID string
	Stage        string
	CalledAt     time.Time
}

type ActionInput struct {
	EntryID    string
	OccurredAt time.Time
}

// EntryStore is the command surface of the dispatch core. Every method
// is one atomic unit: candidate selection, room lookup, and the write
// are applied together or not at all. Implementations serialize
// CallNext per (departmentID, stage) partition, and Complete's doctor
// auto-enqueue check runs under the same serialization.
type EntryStore interface {
	// Register creates a waiting entry for the patient in the given
	// stage. When the patient already has an active entry in that
	// stage the existing entry is returned with created=false.
	Register(ctx context.Context, input RegisterInput) (models.QueueEntry, bool, error)
	GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error)
	// ListQueue returns the partition's active entries ordered by
	// (orderKey, createdAt).
	ListQueue(ctx context.Context, departmentID, stage string) ([]models.QueueEntry, error)
	// CallNext moves the earliest waiting entry to calling with a free
	// room attached, or fails with ErrNoCapacity.
	CallNext(ctx context.Context, input CallNextInput) (models.QueueEntry, error)
	StartProcessing(ctx context.Context, input ActionInput) (models.QueueEntry, error)
	// Complete marks the entry completed. Completing an optometrist
	// entry enqueues the patient into the doctor stage unless an
	// active doctor entry already exists.
	Complete(ctx context.Context, input ActionInput) (models.QueueEntry, error)
	Hold(ctx context.Context, input ActionInput) (models.QueueEntry, error)
	// ReturnToQueue restores waiting with the entry's original order
	// key; the patient resumes their old slot rather than re-queueing.
	ReturnToQueue(ctx context.Context, input ActionInput) (models.QueueEntry, error)
	// AutoReturn sends entries stuck in calling longer than grace back
	// to waiting. Dispatcher-layer timeout; the state machine itself
	// has no clock.
	AutoReturn(ctx context.Context, grace time.Duration, batchSize int) (int, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

// PatientRegistry is the externally owned patient record, read at
// entry-creation time.
type PatientRegistry interface {
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
}

// ProviderDirectory lists a department's providers for a stage in a
// stable order; the room allocator walks their rooms in that order.
type ProviderDirectory interface {
	ListProviders(ctx context.Context, departmentID, stage string) ([]models.Provider, error)
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

const (
	RoleCounter     = "counter"
	RolePatientCare = "patientcare"
	RoleAdmin       = "admin"
)
