package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/models"
	"github.com/Shafqat-Shahriar/Project-Queue-Management-System/internal/store"
)

func TestCallNextConcurrency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	departmentID := uuid.NewString()
	seedDepartment(t, ctx, pool, departmentID, "A1", "A2")
	seedPatient(t, ctx, pool, "p1", departmentID, false)
	seedPatient(t, ctx, pool, "p2", departmentID, false)

	for _, patientID := range []string{"p1", "p2"} {
		if _, _, err := st.Register(ctx, store.RegisterInput{PatientID: patientID}); err != nil {
			t.Fatalf("register %s: %v", patientID, err)
		}
	}

	var wg sync.WaitGroup
	results := make(chan models.QueueEntry, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := st.CallNext(ctx, store.CallNextInput{
				DepartmentID: departmentID,
				Stage:        models.StageOptometrist,
			})
			if err != nil {
				t.Errorf("call next: %v", err)
				return
			}
			results <- entry
		}()
	}
	wg.Wait()
	close(results)

	entries := map[string]string{}
	rooms := map[string]bool{}
	for entry := range results {
		entries[entry.EntryID] = *entry.Room
		if rooms[*entry.Room] {
			t.Fatalf("room %s assigned twice", *entry.Room)
		}
		rooms[*entry.Room] = true
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 distinct entries, got %d", len(entries))
	}
}

func TestRegisterIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	departmentID := uuid.NewString()
	seedDepartment(t, ctx, pool, departmentID, "A1")
	seedPatient(t, ctx, pool, "p1", departmentID, false)

	first, created, err := st.Register(ctx, store.RegisterInput{PatientID: "p1"})
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	second, created, err := st.Register(ctx, store.RegisterInput{PatientID: "p1"})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if created || second.EntryID != first.EntryID {
		t.Fatalf("expected existing entry back, got created=%v %s vs %s", created, second.EntryID, first.EntryID)
	}
}

func TestEmergencyOrderingAndHandOff(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	departmentID := uuid.NewString()
	seedDepartment(t, ctx, pool, departmentID, "A1")
	seedPatient(t, ctx, pool, "p1", departmentID, false)
	seedPatient(t, ctx, pool, "e1", departmentID, true)

	if _, _, err := st.Register(ctx, store.RegisterInput{PatientID: "p1"}); err != nil {
		t.Fatalf("register p1: %v", err)
	}
	emergency, _, err := st.Register(ctx, store.RegisterInput{PatientID: "e1"})
	if err != nil {
		t.Fatalf("register e1: %v", err)
	}
	if emergency.OrderKey.Float64() != 0.5 {
		t.Fatalf("expected emergency key 0.5, got %s", emergency.OrderKey)
	}

	called, err := st.CallNext(ctx, store.CallNextInput{DepartmentID: departmentID, Stage: models.StageOptometrist})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.PatientID != "e1" {
		t.Fatalf("emergency should be called first, got %s", called.PatientID)
	}

	done, err := st.Complete(ctx, store.ActionInput{EntryID: called.EntryID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.StatusCompleted || done.Room != nil {
		t.Fatalf("unexpected completed entry: %+v", done)
	}

	doctorQueue, err := st.ListQueue(ctx, departmentID, models.StageDoctor)
	if err != nil {
		t.Fatalf("list doctor queue: %v", err)
	}
	if len(doctorQueue) != 1 || doctorQueue[0].PatientID != "e1" {
		t.Fatalf("expected e1 waiting for doctor, got %+v", doctorQueue)
	}
	if !doctorQueue[0].Emergency {
		t.Fatalf("emergency flag must carry into the doctor stage")
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedDepartment(t *testing.T, ctx context.Context, pool *pgxpool.Pool, departmentID string, rooms ...string) {
	t.Helper()
	for i, room := range rooms {
		if _, err := pool.Exec(ctx, `
			INSERT INTO providers (provider_id, name, department_id, stage, room, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.NewString(), "Provider "+room, departmentID, models.StageOptometrist, room, i); err != nil {
			t.Fatalf("insert provider: %v", err)
		}
	}
}

func seedPatient(t *testing.T, ctx context.Context, pool *pgxpool.Pool, patientID, departmentID string, emergency bool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		INSERT INTO patients (patient_id, department_id, emergency)
		VALUES ($1, $2, $3)
	`, patientID, departmentID, emergency); err != nil {
		t.Fatalf("insert patient: %v", err)
	}
}
