// Package postgres implements the entry store on pgx. Each command runs
// in one transaction; a queue_partitions row locked FOR UPDATE plays
// the partition lock, so concurrent call-next and stage hand-off for
// the same (department, stage) serialize on the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/queue"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `entry_id, patient_id, department_id, stage, status, room, emergency, order_key_num, order_key_den, created_at, updated_at`

// orderExpr sorts by the rational key's value, then arrival time.
const orderExpr = `(order_key_num::numeric / order_key_den), created_at, entry_id`

func (s *Store) Register(ctx context.Context, input store.RegisterInput) (models.QueueEntry, bool, error) {
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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	patient, err := getPatient(ctx, tx, input.PatientID)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	departmentID := input.DepartmentID
	if departmentID == "" {
		departmentID = patient.DepartmentID
	}
	if departmentID != patient.DepartmentID {
		err = store.ErrDepartmentMismatch
		return models.QueueEntry{}, false, err
	}

	if err = lockPartition(ctx, tx, departmentID, stage); err != nil {
		return models.QueueEntry{}, false, err
	}

	existing, found, err := findActiveEntry(ctx, tx, patient.PatientID, stage)
	if err != nil {
		return models.QueueEntry{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.QueueEntry{}, false, err
		}
		return existing, false, nil
	}

	key, err := insertionKey(ctx, tx, departmentID, stage, patient.Emergency)
	if err != nil {
		return models.QueueEntry{}, false, err
	}

	entry := models.QueueEntry{
		EntryID:      uuid.NewString(),
		PatientID:    patient.PatientID,
		DepartmentID: departmentID,
		Stage:        stage,
		Status:       models.StatusWaiting,
		Emergency:    patient.Emergency,
		OrderKey:     key,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	if err = insertEntry(ctx, tx, entry); err != nil {
		return models.QueueEntry{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (models.QueueEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE entry_id = $1
	`, entryID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) ListQueue(ctx context.Context, departmentID, stage string) ([]models.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE department_id = $1 AND stage = $2
			AND status IN ('waiting', 'calling', 'processing')
		ORDER BY `+orderExpr+`
	`, departmentID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (models.QueueEntry, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = lockPartition(ctx, tx, input.DepartmentID, input.Stage); err != nil {
		return models.QueueEntry{}, err
	}

	universe, err := listRooms(ctx, tx, input.DepartmentID, input.Stage)
	if err != nil {
		return models.QueueEntry{}, err
	}
	occupied, err := occupiedRooms(ctx, tx, input.DepartmentID, input.Stage)
	if err != nil {
		return models.QueueEntry{}, err
	}
	room, ok := queue.FirstFreeRoom(universe, occupied)
	if !ok {
		err = store.ErrNoCapacity
		return models.QueueEntry{}, err
	}

	row := tx.QueryRow(ctx, `
		WITH next_entry AS (
			SELECT entry_id
			FROM queue_entries
			WHERE department_id = $1 AND stage = $2 AND status = 'waiting'
			ORDER BY `+orderExpr+`
			FOR UPDATE
			LIMIT 1
		)
		UPDATE queue_entries
		SET status = 'calling',
			room = $3,
			updated_at = $4
		FROM next_entry
		WHERE queue_entries.entry_id = next_entry.entry_id
		RETURNING `+qualifiedEntryColumns("queue_entries"),
		input.DepartmentID, input.Stage, room, calledAt)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrNoCapacity
		}
		return models.QueueEntry{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) StartProcessing(ctx context.Context, input store.ActionInput) (models.QueueEntry, error) {
	// Room is left as-is: starting from calling keeps the assignment,
	// starting from anywhere else keeps none.
	return s.updateStatus(ctx, input, models.StatusProcessing, false)
}

func (s *Store) Hold(ctx context.Context, input store.ActionInput) (models.QueueEntry, error) {
	return s.updateStatus(ctx, input, models.StatusHold, true)
}

func (s *Store) ReturnToQueue(ctx context.Context, input store.ActionInput) (models.QueueEntry, error) {
	// The order key is not recomputed; the entry keeps its slot.
	return s.updateStatus(ctx, input, models.StatusWaiting, true)
}

func (s *Store) updateStatus(ctx context.Context, input store.ActionInput, status string, clearRoom bool) (models.QueueEntry, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	query := `
		UPDATE queue_entries
		SET status = $2, updated_at = $3
		WHERE entry_id = $1
		RETURNING ` + entryColumns
	if clearRoom {
		query = `
		UPDATE queue_entries
		SET status = $2, updated_at = $3, room = NULL
		WHERE entry_id = $1
		RETURNING ` + entryColumns
	}
	row := s.pool.QueryRow(ctx, query, input.EntryID, status, occurredAt)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}
	return entry, nil
}

func (s *Store) Complete(ctx context.Context, input store.ActionInput) (models.QueueEntry, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.QueueEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE queue_entries
		SET status = 'completed', room = NULL, updated_at = $2
		WHERE entry_id = $1
		RETURNING `+entryColumns,
		input.EntryID, occurredAt)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrEntryNotFound
		}
		return models.QueueEntry{}, err
	}

	nextStage := models.NextStage(entry.Stage)
	if nextStage != "" {
		if err = s.enqueueNextStage(ctx, tx, entry, nextStage, occurredAt); err != nil {
			return models.QueueEntry{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.QueueEntry{}, err
	}
	return entry, nil
}

// enqueueNextStage creates the follow-on entry after an optometrist
// completion, under the next stage's partition lock so two concurrent
// completions for one patient cannot both pass the duplicate check.
func (s *Store) enqueueNextStage(ctx context.Context, tx pgx.Tx, completed models.QueueEntry, nextStage string, occurredAt time.Time) error {
	if err := lockPartition(ctx, tx, completed.DepartmentID, nextStage); err != nil {
		return err
	}

	_, found, err := findActiveEntry(ctx, tx, completed.PatientID, nextStage)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	emergency := completed.Emergency
	if patient, perr := getPatient(ctx, tx, completed.PatientID); perr == nil {
		emergency = patient.Emergency
	} else if !errors.Is(perr, store.ErrPatientNotFound) {
		return perr
	}

	key, err := insertionKey(ctx, tx, completed.DepartmentID, nextStage, emergency)
	if err != nil {
		return err
	}
	next := models.QueueEntry{
		EntryID:      uuid.NewString(),
		PatientID:    completed.PatientID,
		DepartmentID: completed.DepartmentID,
		Stage:        nextStage,
		Status:       models.StatusWaiting,
		Emergency:    emergency,
		OrderKey:     key,
		CreatedAt:    occurredAt,
		UpdatedAt:    occurredAt,
	}
	return insertEntry(ctx, tx, next)
}

func (s *Store) AutoReturn(ctx context.Context, grace time.Duration, batchSize int) (int, error) {
	if grace <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := time.Now().UTC().Add(-grace)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE queue_entries
		SET status = 'waiting', room = NULL, updated_at = now()
		WHERE entry_id IN (
			SELECT entry_id
			FROM queue_entries
			WHERE status = 'calling' AND updated_at <= $1
			ORDER BY updated_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $2
		)
	`, cutoff, batchSize)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	var patient models.Patient
	row := s.pool.QueryRow(ctx, `
		SELECT patient_id, department_id, emergency
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	if err := row.Scan(&patient.PatientID, &patient.DepartmentID, &patient.Emergency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.ErrPatientNotFound
		}
		return models.Patient{}, err
	}
	return patient, nil
}

func (s *Store) ListProviders(ctx context.Context, departmentID, stage string) ([]models.Provider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, name, department_id, stage, room
		FROM providers
		WHERE department_id = $1 AND stage = $2
		ORDER BY position ASC, provider_id ASC
	`, departmentID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ProviderID, &p.Name, &p.DepartmentID, &p.Stage, &p.Room); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return providers, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var sess store.Session
	var expires sql.NullTime
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > now())
	`, sessionID)
	if err := row.Scan(&sess.SessionID, &sess.UserID, &sess.Role, &expires); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	if expires.Valid {
		sess.ExpiresAt = expires.Time
	}
	return sess, nil
}

// lockPartition takes the single-writer lock for a (department, stage)
// queue by locking its queue_partitions row, creating it on first use.
func lockPartition(ctx context.Context, tx pgx.Tx, departmentID, stage string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO queue_partitions (department_id, stage)
		VALUES ($1, $2)
		ON CONFLICT (department_id, stage) DO NOTHING
	`, departmentID, stage)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		SELECT 1
		FROM queue_partitions
		WHERE department_id = $1 AND stage = $2
		FOR UPDATE
	`, departmentID, stage)
	return err
}

func getPatient(ctx context.Context, tx pgx.Tx, patientID string) (models.Patient, error) {
	var patient models.Patient
	row := tx.QueryRow(ctx, `
		SELECT patient_id, department_id, emergency
		FROM patients
		WHERE patient_id = $1
	`, patientID)
	if err := row.Scan(&patient.PatientID, &patient.DepartmentID, &patient.Emergency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, store.ErrPatientNotFound
		}
		return models.Patient{}, err
	}
	return patient, nil
}

func findActiveEntry(ctx context.Context, tx pgx.Tx, patientID, stage string) (models.QueueEntry, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE patient_id = $1 AND stage = $2
			AND status IN ('waiting', 'calling', 'processing')
		LIMIT 1
	`, patientID, stage)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.QueueEntry{}, false, nil
		}
		return models.QueueEntry{}, false, err
	}
	return entry, true, nil
}

// insertionKey loads the partition's waiting keys and computes the new
// entry's position, renumbering first when the fraction depth is
// exhausted or an emergency finds no gap ahead of the waiting normals.
// Callers hold the partition lock.
func insertionKey(ctx context.Context, tx pgx.Tx, departmentID, stage string, emergency bool) (models.OrderKey, error) {
	slots, err := waitingSlots(ctx, tx, departmentID, stage)
	if err != nil {
		return models.OrderKey{}, err
	}
	if queue.NeedsRenumber(slots, emergency) {
		if err := renumberPartition(ctx, tx, departmentID, stage); err != nil {
			return models.OrderKey{}, err
		}
		slots, err = waitingSlots(ctx, tx, departmentID, stage)
		if err != nil {
			return models.OrderKey{}, err
		}
	}
	return queue.NextKey(slots, emergency), nil
}

func waitingSlots(ctx context.Context, tx pgx.Tx, departmentID, stage string) ([]queue.WaitingSlot, error) {
	rows, err := tx.Query(ctx, `
		SELECT order_key_num, order_key_den, emergency
		FROM queue_entries
		WHERE department_id = $1 AND stage = $2 AND status = 'waiting'
	`, departmentID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []queue.WaitingSlot
	for rows.Next() {
		var slot queue.WaitingSlot
		if err := rows.Scan(&slot.Key.Num, &slot.Key.Den, &slot.Emergency); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// renumberPartition rewrites waiting and hold entries to consecutive
// integer keys in their current order. Hold entries are included so
// return-to-queue keeps its original relative slot afterwards.
func renumberPartition(ctx context.Context, tx pgx.Tx, departmentID, stage string) error {
	_, err := tx.Exec(ctx, `
		WITH ranked AS (
			SELECT entry_id,
				row_number() OVER (ORDER BY `+orderExpr+`) AS rn
			FROM queue_entries
			WHERE department_id = $1 AND stage = $2
				AND status IN ('waiting', 'hold')
		)
		UPDATE queue_entries
		SET order_key_num = ranked.rn,
			order_key_den = 1
		FROM ranked
		WHERE queue_entries.entry_id = ranked.entry_id
	`, departmentID, stage)
	return err
}

func listRooms(ctx context.Context, tx pgx.Tx, departmentID, stage string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT room
		FROM providers
		WHERE department_id = $1 AND stage = $2
		ORDER BY position ASC, provider_id ASC
	`, departmentID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func occupiedRooms(ctx context.Context, tx pgx.Tx, departmentID, stage string) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT room
		FROM queue_entries
		WHERE department_id = $1 AND stage = $2
			AND status IN ('calling', 'processing')
			AND room IS NOT NULL
	`, departmentID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, entry models.QueueEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO queue_entries (
			entry_id, patient_id, department_id, stage, status, room,
			emergency, order_key_num, order_key_den, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, entry.EntryID, entry.PatientID, entry.DepartmentID, entry.Stage, entry.Status,
		entry.Room, entry.Emergency, entry.OrderKey.Num, entry.OrderKey.Den,
		entry.CreatedAt, entry.UpdatedAt)
	return err
}

func qualifiedEntryColumns(table string) string {
	return table + `.entry_id, ` + table + `.patient_id, ` + table + `.department_id, ` +
		table + `.stage, ` + table + `.status, ` + table + `.room, ` + table + `.emergency, ` +
		table + `.order_key_num, ` + table + `.order_key_den, ` + table + `.created_at, ` + table + `.updated_at`
}

func scanEntry(row pgx.Row) (models.QueueEntry, error) {
	var entry models.QueueEntry
	var room sql.NullString
	if err := row.Scan(&entry.EntryID, &entry.PatientID, &entry.DepartmentID, &entry.Stage,
		&entry.Status, &room, &entry.Emergency, &entry.OrderKey.Num, &entry.OrderKey.Den,
		&entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return models.QueueEntry{}, err
	}
	if room.Valid {
		entry.Room = &room.String
	}
	return entry, nil
}
