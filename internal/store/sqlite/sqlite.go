package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"pubflow/internal/domain"
	"pubflow/internal/store"
)

// EnsureSchema creates the tasks table if it doesn't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  images TEXT NOT NULL DEFAULT '[]',
  topics TEXT NOT NULL DEFAULT '[]',
  publish_time DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('pending','running','completed','failed')) DEFAULT 'pending',
  created_time DATETIME NOT NULL,
  updated_time DATETIME NOT NULL,
  result_message TEXT NOT NULL DEFAULT '',
  retry_count INTEGER NOT NULL DEFAULT 0,
  max_retries INTEGER NOT NULL DEFAULT 3
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, publish_time);
CREATE INDEX IF NOT EXISTS idx_tasks_updated ON tasks(status, updated_time);
`
	_, err := db.Exec(schema)
	return err
}

// Store persists tasks in SQLite, one row per task keyed by id.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

const taskCols = `id,title,content,images,topics,publish_time,status,created_time,updated_time,result_message,retry_count,max_retries`

func (s *Store) Load(ctx context.Context) ([]domain.Task, error) {
	return s.query(ctx, `SELECT `+taskCols+` FROM tasks ORDER BY created_time`)
}

func (s *Store) Add(ctx context.Context, t domain.Task) bool {
	if t.ID == "" {
		return false
	}
	images, topics := marshalLists(t)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO tasks (`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, t.Content, images, topics, t.PublishTime, string(t.Status),
		t.CreatedTime, t.UpdatedTime, t.ResultMessage, t.RetryCount, t.MaxRetries)
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("insert task")
		return false
	}
	return true
}

func (s *Store) Update(ctx context.Context, t domain.Task) bool {
	images, topics := marshalLists(t)
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET title=?,content=?,images=?,topics=?,publish_time=?,status=?,updated_time=?,result_message=?,retry_count=?,max_retries=?
WHERE id=?`,
		t.Title, t.Content, images, topics, t.PublishTime, string(t.Status),
		t.UpdatedTime, t.ResultMessage, t.RetryCount, t.MaxRetries, t.ID)
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID).Msg("update task")
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) Delete(ctx context.Context, id string) bool {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		log.Error().Err(err).Str("task_id", id).Msg("delete task")
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, store.ErrNotFound
	}
	return t, err
}

func (s *Store) GetDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	return s.query(ctx, `
SELECT `+taskCols+` FROM tasks
WHERE status='pending' AND publish_time <= ?
ORDER BY publish_time`, now)
}

func (s *Store) GetRetryEligible(ctx context.Context) ([]domain.Task, error) {
	return s.query(ctx, `
SELECT `+taskCols+` FROM tasks
WHERE status='failed' AND retry_count < max_retries
ORDER BY publish_time`)
}

func (s *Store) LastCompletedAt(ctx context.Context) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT updated_time FROM tasks WHERE status='completed'
ORDER BY updated_time DESC LIMIT 1`)
	var last time.Time
	if err := row.Scan(&last); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return last, nil
}

func (s *Store) ListRunningOlderThan(ctx context.Context, cutoff time.Time) ([]domain.Task, error) {
	return s.query(ctx, `
SELECT `+taskCols+` FROM tasks
WHERE status='running' AND updated_time < ?`, cutoff)
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM tasks
WHERE updated_time < ?
  AND (status='completed' OR (status='failed' AND retry_count >= max_retries))`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return domain.Stats{}, err
	}
	defer rows.Close()

	var st domain.Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.Stats{}, err
		}
		st.Total += count
		switch domain.Status(status) {
		case domain.StatusPending:
			st.Pending = count
		case domain.StatusRunning:
			st.Running = count
		case domain.StatusCompleted:
			st.Completed = count
		case domain.StatusFailed:
			st.Failed = count
		}
	}
	return st, rows.Err()
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status, images, topics string
	err := row.Scan(&t.ID, &t.Title, &t.Content, &images, &topics, &t.PublishTime,
		&status, &t.CreatedTime, &t.UpdatedTime, &t.ResultMessage, &t.RetryCount, &t.MaxRetries)
	if err != nil {
		return domain.Task{}, err
	}
	t.Status = domain.Status(status)
	_ = json.Unmarshal([]byte(images), &t.Images)
	_ = json.Unmarshal([]byte(topics), &t.Topics)
	return t, nil
}

func marshalLists(t domain.Task) (string, string) {
	images, _ := json.Marshal(t.Images)
	topics, _ := json.Marshal(t.Topics)
	return string(images), string(topics)
}
