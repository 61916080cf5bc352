package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"scenegen/internal/domain"
	"scenegen/internal/sqlinline"
)

type storedRow struct {
	status       string
	currentScene int
	totalScenes  int
	scenes       []byte
	images       []byte
	errMsg       string
	createdAt    time.Time
	updatedAt    time.Time
}

type stubDB struct {
	mu   sync.Mutex
	rows map[string]storedRow
	ddl  int
}

func newStubDB() *stubDB {
	return &stubDB{rows: make(map[string]storedRow)}
}

func (s *stubDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch query {
	case sqlinline.QCreateSceneJobs:
		s.ddl++
		return pgconn.NewCommandTag("CREATE TABLE"), nil
	case sqlinline.QInsertSceneJob:
		id := args[0].(string)
		if _, ok := s.rows[id]; ok {
			return pgconn.CommandTag{}, errors.New("duplicate key")
		}
		s.rows[id] = storedRow{
			status:       args[1].(string),
			currentScene: args[2].(int),
			totalScenes:  args[3].(int),
			scenes:       args[4].([]byte),
			images:       args[5].([]byte),
			errMsg:       args[6].(string),
			createdAt:    args[7].(time.Time),
			updatedAt:    args[8].(time.Time),
		}
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	case sqlinline.QUpdateSceneJob:
		id := args[0].(string)
		row, ok := s.rows[id]
		if !ok {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		row.status = args[1].(string)
		row.currentScene = args[2].(int)
		row.totalScenes = args[3].(int)
		row.scenes = args[4].([]byte)
		row.images = args[5].([]byte)
		row.errMsg = args[6].(string)
		row.updatedAt = args[7].(time.Time)
		s.rows[id] = row
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected query")
}

func (s *stubDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := args[0].(string)
	row, ok := s.rows[id]
	if !ok || query != sqlinline.QSelectSceneJob {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = id
		*dest[1].(*string) = row.status
		*dest[2].(*int) = row.currentScene
		*dest[3].(*int) = row.totalScenes
		*dest[4].(*[]byte) = row.scenes
		*dest[5].(*[]byte) = row.images
		*dest[6].(*string) = row.errMsg
		*dest[7].(*time.Time) = row.createdAt
		*dest[8].(*time.Time) = row.updatedAt
		return nil
	}}
}

func (s *stubDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	scan func(dest ...any) error
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return r.scan(dest...)
}

func TestJobRepositoryPGRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newStubDB()
	repo := NewJobRepository(db)

	if err := repo.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema error: %v", err)
	}
	if db.ddl != 1 {
		t.Fatalf("ddl executions = %d, want 1", db.ddl)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job := domain.NewJob(uuid.NewString(), now)
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	job.Status = domain.JobStatusGenerating
	job.TotalScenes = 2
	job.CurrentScene = 1
	job.Scenes = []domain.Scene{
		{SceneNumber: 1, ScriptLine: "A storm rolls in", SceneType: "exterior", Props: []string{"boat"}},
		{SceneNumber: 2, ScriptLine: "Calm returns", SceneType: "exterior", Props: []string{}},
	}
	job.Images = []string{"scene_001.png"}
	job.UpdatedAt = now.Add(time.Minute)
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != domain.JobStatusGenerating {
		t.Fatalf("Status = %q, want %q", got.Status, domain.JobStatusGenerating)
	}
	if got.CurrentScene != 1 || got.TotalScenes != 2 {
		t.Fatalf("progress = %d/%d, want 1/2", got.CurrentScene, got.TotalScenes)
	}
	if len(got.Scenes) != 2 || got.Scenes[0].Props[0] != "boat" {
		t.Fatalf("Scenes = %+v", got.Scenes)
	}
	if len(got.Images) != 1 || got.Images[0] != "scene_001.png" {
		t.Fatalf("Images = %v", got.Images)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, now.Add(time.Minute))
	}
}

func TestJobRepositoryPGNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newStubDB())

	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Get(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(invalid id) error = %v, want ErrNotFound", err)
	}
	job := domain.NewJob(uuid.NewString(), time.Now())
	if err := repo.Update(ctx, job); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryPGNilListsStoredAsEmpty(t *testing.T) {
	ctx := context.Background()
	db := newStubDB()
	repo := NewJobRepository(db)

	job := &domain.Job{ID: uuid.NewString(), Status: domain.JobStatusInitializing}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	row := db.rows[job.ID]
	if string(row.scenes) != "[]" || string(row.images) != "[]" {
		t.Fatalf("stored lists = %s %s, want [] []", row.scenes, row.images)
	}
}
