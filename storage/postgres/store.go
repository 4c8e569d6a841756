// Package postgres stores schedules and todos in PostgreSQL through a single
// pgx connection.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cyp0633/libtodocal/event"
	"github.com/cyp0633/libtodocal/eventtime"
	"github.com/cyp0633/libtodocal/repeat"
	"github.com/cyp0633/libtodocal/storage"
)

const uniqueViolation = "23505"

// Store implements storage.Repository. A *pgx.Conn is not safe for
// concurrent use, so every statement runs under mu.
type Store struct {
	mu     sync.Mutex
	conn   *pgx.Conn
	logger *slog.Logger
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New wraps an open connection.
func New(conn *pgx.Conn, opts ...Option) *Store {
	s := &Store{
		conn:   conn,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses connStr, connects and pings the server.
func Connect(ctx context.Context, connStr string, opts ...Option) (*Store, error) {
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx connect: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	return New(conn, opts...), nil
}

// Close closes the underlying connection.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	uuid                 TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	event_time           JSONB NOT NULL,
	repeating            JSONB,
	event_tag_id         TEXT NOT NULL DEFAULT '',
	notification_options JSONB NOT NULL DEFAULT '[]',
	show_turn            BOOLEAN NOT NULL DEFAULT FALSE,
	next_repeating_times JSONB NOT NULL DEFAULT '[]',
	excludes             JSONB NOT NULL DEFAULT '[]',
	lower_bound          DOUBLE PRECISION NOT NULL,
	upper_bound          DOUBLE PRECISION NOT NULL,
	is_repeating         BOOLEAN NOT NULL DEFAULT FALSE,
	repeat_end           DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS schedules_lower_bound_idx ON schedules (lower_bound);

CREATE TABLE IF NOT EXISTS todos (
	uuid                 TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	event_time           JSONB,
	repeating            JSONB,
	repeating_turn       INTEGER NOT NULL DEFAULT 0,
	event_tag_id         TEXT NOT NULL DEFAULT '',
	notification_options JSONB NOT NULL DEFAULT '[]',
	created_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS done_todos (
	uuid            TEXT PRIMARY KEY,
	origin_event_id TEXT NOT NULL,
	name            TEXT NOT NULL,
	done_time       TIMESTAMPTZ NOT NULL,
	event_time      JSONB,
	event_tag_id    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS done_todos_origin_idx ON done_todos (origin_event_id, done_time);
`

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(ctx, schema); err != nil {
		return backendError("migrate", err)
	}
	s.logger.Info("postgres schema ready")
	return nil
}

// Schedule operations

const scheduleColumns = `uuid, name, event_time, repeating, event_tag_id, notification_options,
	show_turn, next_repeating_times, excludes`

type scheduleRow struct {
	ev                  event.ScheduleEvent
	eventTime           []byte
	repeating           []byte
	notificationOptions []byte
	nextRepeatingTimes  []byte
	excludes            []byte
}

func (r *scheduleRow) targets() []any {
	return []any{&r.ev.UUID, &r.ev.Name, &r.eventTime, &r.repeating, &r.ev.EventTagID,
		&r.notificationOptions, &r.ev.ShowTurn, &r.nextRepeatingTimes, &r.excludes}
}

func (r *scheduleRow) decode() (event.ScheduleEvent, error) {
	ev := r.ev
	if err := json.Unmarshal(r.eventTime, &ev.Time); err != nil {
		return ev, fmt.Errorf("decode event_time of %s: %w", ev.UUID, err)
	}
	if len(r.repeating) > 0 && string(r.repeating) != "null" {
		var rep repeat.EventRepeating
		if err := json.Unmarshal(r.repeating, &rep); err != nil {
			return ev, fmt.Errorf("decode repeating of %s: %w", ev.UUID, err)
		}
		ev.Repeating = &rep
	}
	if err := json.Unmarshal(r.notificationOptions, &ev.NotificationOptions); err != nil {
		return ev, fmt.Errorf("decode notification_options of %s: %w", ev.UUID, err)
	}
	if err := json.Unmarshal(r.nextRepeatingTimes, &ev.NextRepeatingTimes); err != nil {
		return ev, fmt.Errorf("decode next_repeating_times of %s: %w", ev.UUID, err)
	}
	var keys []string
	if err := json.Unmarshal(r.excludes, &keys); err != nil {
		return ev, fmt.Errorf("decode excludes of %s: %w", ev.UUID, err)
	}
	for _, k := range keys {
		if ev.RepeatingTimeToExcludes == nil {
			ev.RepeatingTimeToExcludes = make(map[string]struct{}, len(keys))
		}
		ev.RepeatingTimeToExcludes[k] = struct{}{}
	}
	return ev, nil
}

func scheduleArgs(ev event.ScheduleEvent) ([]any, error) {
	eventTime, err := json.Marshal(ev.Time)
	if err != nil {
		return nil, err
	}
	var repeating *string
	var repeatEnd *float64
	if ev.Repeating != nil {
		b, err := json.Marshal(ev.Repeating)
		if err != nil {
			return nil, err
		}
		text := string(b)
		repeating = &text
		repeatEnd = ev.Repeating.EndTime
	}
	notifications, err := marshalList(ev.NotificationOptions)
	if err != nil {
		return nil, err
	}
	nextTimes, err := marshalList(ev.NextRepeatingTimes)
	if err != nil {
		return nil, err
	}
	excludes, err := marshalList(ev.ExcludeKeys())
	if err != nil {
		return nil, err
	}
	return []any{
		ev.UUID, ev.Name, string(eventTime), repeating, ev.EventTagID, notifications,
		ev.ShowTurn, nextTimes, excludes,
		ev.Time.LowerBoundWithFixed(), ev.Time.UpperBoundWithFixed(), ev.Repeating != nil, repeatEnd,
	}, nil
}

func (s *Store) MakeSchedule(ctx context.Context, ev event.ScheduleEvent) error {
	if ev.UUID == "" {
		return storage.InvalidInput("schedule without uuid")
	}
	args, err := scheduleArgs(ev)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode schedule %s: %v", ev.UUID, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(ctx, `
INSERT INTO schedules (`+scheduleColumns+`, lower_bound, upper_bound, is_repeating, repeat_end)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`, args...)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("schedule", ev.UUID)
	}
	if err != nil {
		return backendError("insert schedule "+ev.UUID, err)
	}
	return nil
}

func (s *Store) UpdateSchedule(ctx context.Context, ev event.ScheduleEvent) error {
	args, err := scheduleArgs(ev)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode schedule %s: %v", ev.UUID, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, `
UPDATE schedules
SET name = $2, event_time = $3, repeating = $4, event_tag_id = $5, notification_options = $6,
	show_turn = $7, next_repeating_times = $8, excludes = $9,
	lower_bound = $10, upper_bound = $11, is_repeating = $12, repeat_end = $13
WHERE uuid = $1
`, args...)
	if err != nil {
		return backendError("update schedule "+ev.UUID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound("schedule", ev.UUID)
	}
	return nil
}

func (s *Store) RemoveSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, `DELETE FROM schedules WHERE uuid = $1`, id)
	if err != nil {
		return backendError("delete schedule "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound("schedule", id)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*event.ScheduleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row scheduleRow
	err := s.conn.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE uuid = $1`, id).Scan(row.targets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.NotFound("schedule", id)
	}
	if err != nil {
		return nil, backendError("select schedule "+id, err)
	}

	ev, err := row.decode()
	if err != nil {
		return nil, backendError("decode schedule", err)
	}
	return &ev, nil
}

func (s *Store) FindSchedules(ctx context.Context, rng eventtime.Range) ([]event.ScheduleEvent, error) {
	evs, err := s.querySchedules(ctx, `
SELECT `+scheduleColumns+` FROM schedules
WHERE lower_bound < $2
  AND (CASE WHEN is_repeating
       THEN repeat_end IS NULL OR repeat_end + (upper_bound - lower_bound) >= $1
       ELSE upper_bound >= $1 END)
ORDER BY lower_bound, uuid
`, rng.Lower, rng.Upper)
	if err != nil {
		return nil, err
	}

	out := evs[:0]
	for _, ev := range evs {
		if storage.MayOverlap(ev, rng) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) AllSchedules(ctx context.Context) ([]event.ScheduleEvent, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY lower_bound, uuid`)
}

func (s *Store) querySchedules(ctx context.Context, sql string, args ...any) ([]event.ScheduleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, backendError("query schedules", err)
	}
	defer rows.Close()

	var out []event.ScheduleEvent
	for rows.Next() {
		var row scheduleRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, backendError("scan schedule", err)
		}
		ev, err := row.decode()
		if err != nil {
			return nil, backendError("decode schedule", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("iterate schedules", err)
	}
	return out, nil
}

func (s *Store) SaveRepeatingTimes(ctx context.Context, id string, times []event.RepeatingTimes) error {
	payload, err := marshalList(times)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode repeating times of %s: %v", id, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, `UPDATE schedules SET next_repeating_times = $2 WHERE uuid = $1`, id, payload)
	if err != nil {
		return backendError("save repeating times of "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound("schedule", id)
	}
	return nil
}

// Todo operations

const todoColumns = `uuid, name, event_time, repeating, repeating_turn, event_tag_id,
	notification_options, created_at`

type todoRow struct {
	todo                event.TodoEvent
	eventTime           []byte
	repeating           []byte
	notificationOptions []byte
}

func (r *todoRow) targets() []any {
	return []any{&r.todo.UUID, &r.todo.Name, &r.eventTime, &r.repeating, &r.todo.RepeatingTurn,
		&r.todo.EventTagID, &r.notificationOptions, &r.todo.CreatedAt}
}

func (r *todoRow) decode() (event.TodoEvent, error) {
	todo := r.todo
	t, err := decodeEventTime(r.eventTime)
	if err != nil {
		return todo, fmt.Errorf("decode event_time of %s: %w", todo.UUID, err)
	}
	todo.Time = t
	if len(r.repeating) > 0 && string(r.repeating) != "null" {
		var rep repeat.EventRepeating
		if err := json.Unmarshal(r.repeating, &rep); err != nil {
			return todo, fmt.Errorf("decode repeating of %s: %w", todo.UUID, err)
		}
		todo.Repeating = &rep
	}
	if err := json.Unmarshal(r.notificationOptions, &todo.NotificationOptions); err != nil {
		return todo, fmt.Errorf("decode notification_options of %s: %w", todo.UUID, err)
	}
	return todo, nil
}

func todoArgs(todo event.TodoEvent) ([]any, error) {
	eventTime, err := marshalNullable(todo.Time)
	if err != nil {
		return nil, err
	}
	repeating, err := marshalNullable(todo.Repeating)
	if err != nil {
		return nil, err
	}
	notifications, err := marshalList(todo.NotificationOptions)
	if err != nil {
		return nil, err
	}
	return []any{
		todo.UUID, todo.Name, eventTime, repeating, todo.RepeatingTurn, todo.EventTagID,
		notifications, todo.CreatedAt,
	}, nil
}

func (s *Store) MakeTodo(ctx context.Context, todo event.TodoEvent) error {
	if todo.UUID == "" {
		return storage.InvalidInput("todo without uuid")
	}
	args, err := todoArgs(todo)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode todo %s: %v", todo.UUID, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(ctx, `
INSERT INTO todos (`+todoColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, args...)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("todo", todo.UUID)
	}
	if err != nil {
		return backendError("insert todo "+todo.UUID, err)
	}
	return nil
}

func (s *Store) UpdateTodo(ctx context.Context, todo event.TodoEvent) error {
	args, err := todoArgs(todo)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode todo %s: %v", todo.UUID, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, `
UPDATE todos
SET name = $2, event_time = $3, repeating = $4, repeating_turn = $5, event_tag_id = $6,
	notification_options = $7, created_at = $8
WHERE uuid = $1
`, args...)
	if err != nil {
		return backendError("update todo "+todo.UUID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound("todo", todo.UUID)
	}
	return nil
}

func (s *Store) RemoveTodo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, `DELETE FROM todos WHERE uuid = $1`, id)
	if err != nil {
		return backendError("delete todo "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.NotFound("todo", id)
	}
	return nil
}

func (s *Store) GetTodo(ctx context.Context, id string) (*event.TodoEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row todoRow
	err := s.conn.QueryRow(ctx, `SELECT `+todoColumns+` FROM todos WHERE uuid = $1`, id).Scan(row.targets()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.NotFound("todo", id)
	}
	if err != nil {
		return nil, backendError("select todo "+id, err)
	}

	todo, err := row.decode()
	if err != nil {
		return nil, backendError("decode todo", err)
	}
	return &todo, nil
}

func (s *Store) AllTodos(ctx context.Context) ([]event.TodoEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `SELECT `+todoColumns+` FROM todos ORDER BY created_at, uuid`)
	if err != nil {
		return nil, backendError("query todos", err)
	}
	defer rows.Close()

	var out []event.TodoEvent
	for rows.Next() {
		var row todoRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, backendError("scan todo", err)
		}
		todo, err := row.decode()
		if err != nil {
			return nil, backendError("decode todo", err)
		}
		out = append(out, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("iterate todos", err)
	}
	return out, nil
}

func (s *Store) SaveDoneTodo(ctx context.Context, done event.DoneTodoEvent) error {
	if done.UUID == "" {
		return storage.InvalidInput("done todo without uuid")
	}
	eventTime, err := marshalNullable(done.EventTime)
	if err != nil {
		return storage.InvalidInput(fmt.Sprintf("encode done todo %s: %v", done.UUID, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(ctx, `
INSERT INTO done_todos (uuid, origin_event_id, name, done_time, event_time, event_tag_id)
VALUES ($1, $2, $3, $4, $5, $6)
`, done.UUID, done.OriginEventID, done.Name, done.DoneTime, eventTime, done.EventTagID)
	if isUniqueViolation(err) {
		return storage.AlreadyExists("done todo", done.UUID)
	}
	if err != nil {
		return backendError("insert done todo "+done.UUID, err)
	}
	return nil
}

func (s *Store) DoneTodos(ctx context.Context, originID string) ([]event.DoneTodoEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
SELECT uuid, origin_event_id, name, done_time, event_time, event_tag_id
FROM done_todos
WHERE $1 = '' OR origin_event_id = $1
ORDER BY done_time, uuid
`, originID)
	if err != nil {
		return nil, backendError("query done todos", err)
	}
	defer rows.Close()

	var out []event.DoneTodoEvent
	for rows.Next() {
		var (
			d         event.DoneTodoEvent
			eventTime []byte
		)
		if err := rows.Scan(&d.UUID, &d.OriginEventID, &d.Name, &d.DoneTime, &eventTime, &d.EventTagID); err != nil {
			return nil, backendError("scan done todo", err)
		}
		if d.EventTime, err = decodeEventTime(eventTime); err != nil {
			return nil, backendError("decode done todo "+d.UUID, err)
		}
		d.DoneTime = d.DoneTime.In(time.UTC)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, backendError("iterate done todos", err)
	}
	return out, nil
}

func decodeEventTime(b []byte) (*eventtime.EventTime, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var t eventtime.EventTime
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalList encodes a slice as a JSON array, never as null.
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func marshalNullable[T any](v *T) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	text := string(b)
	return &text, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func backendError(message string, err error) error {
	return &storage.Error{Type: storage.ErrBackend, Message: message, Err: err}
}
