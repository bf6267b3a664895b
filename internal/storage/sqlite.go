package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"homecontrold/internal/model"
	logx "homecontrold/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ActiveSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT schedule_id, user_id, device_id, name, days, start_time,
		        action, action_params, repeat, repeat_interval_ms, last_fired_ms
		   FROM schedules WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		var (
			sc         model.Schedule
			days       string
			start      string
			params     sql.NullString
			repeat     string
			intervalMS sql.NullInt64
			firedMS    sql.NullInt64
		)
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.DeviceID, &sc.Name, &days, &start,
			&sc.Action.Name, &params, &repeat, &intervalMS, &firedMS); err != nil {
			return nil, err
		}
		sc.Active = true
		sc.Repeat = model.RepeatMode(repeat)
		if intervalMS.Valid {
			sc.RepeatInterval = time.Duration(intervalMS.Int64) * time.Millisecond
		}
		sc.LastFired = timeFromMS(firedMS)

		// Malformed rows are data errors: skip and keep scanning.
		ds, err := model.ParseDaySet(days)
		if err != nil {
			s.log.Warn("skipping schedule with malformed day set",
				logx.String("schedule_id", sc.ID), logx.Err(err))
			continue
		}
		sc.Days = ds
		tod, err := model.ParseTimeOfDay(start)
		if err != nil {
			s.log.Warn("skipping schedule with malformed start time",
				logx.String("schedule_id", sc.ID), logx.Err(err))
			continue
		}
		sc.Start = tod
		if params.Valid && strings.TrimSpace(params.String) != "" {
			if err := json.Unmarshal([]byte(params.String), &sc.Action.Params); err != nil {
				s.log.Warn("skipping schedule with malformed action params",
					logx.String("schedule_id", sc.ID), logx.Err(err))
				continue
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Device(ctx context.Context, id string) (model.Device, error) {
	var (
		d      model.Device
		connMS sql.NullInt64
		cmdMS  sql.NullInt64
		online int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id, user_id, name, type, reported_state, desired_state,
		        online, last_connection_ms, last_command_ms, last_schedule_id
		   FROM devices WHERE device_id = ?`, id).
		Scan(&d.ID, &d.UserID, &d.Name, &d.Type, &d.ReportedState, &d.DesiredState,
			&online, &connMS, &cmdMS, &d.LastScheduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Device{}, ErrNotFound
	}
	if err != nil {
		return model.Device{}, err
	}
	d.Online = online != 0
	d.LastConnection = timeFromMS(connMS)
	d.LastCommand = timeFromMS(cmdMS)
	return d, nil
}

// ClaimFire is the at-most-once primitive. The UPDATE only lands when the
// stored last-fired value still equals what this evaluator read; losing
// the race means zero rows affected.
func (s *sqliteStore) ClaimFire(ctx context.Context, scheduleID string, prev, firedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET last_fired_ms = ?
		  WHERE schedule_id = ? AND IFNULL(last_fired_ms, 0) = ?`,
		firedAt.UnixMilli(), scheduleID, msOrZero(prev))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) RecordCommand(ctx context.Context, deviceID, desiredState, scheduleID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET desired_state = ?, last_command_ms = ?, last_schedule_id = ?
		  WHERE device_id = ?`,
		desiredState, at.UnixMilli(), scheduleID, deviceID)
	if err != nil {
		return err
	}
	return notFoundWhenZero(res)
}

func (s *sqliteStore) RecordReport(ctx context.Context, deviceID, state string, online bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET reported_state = ?, online = ?, last_connection_ms = ?
		  WHERE device_id = ?`,
		state, boolInt(online), at.UnixMilli(), deviceID)
	if err != nil {
		return err
	}
	return notFoundWhenZero(res)
}

func (s *sqliteStore) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE devices SET online = 0
		  WHERE online = 1 AND IFNULL(last_connection_ms, 0) < ?`,
		cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) PutSchedule(ctx context.Context, sc model.Schedule) error {
	var params any
	if len(sc.Action.Params) > 0 {
		b, err := json.Marshal(sc.Action.Params)
		if err != nil {
			return err
		}
		params = string(b)
	}
	var intervalMS any
	if sc.RepeatInterval > 0 {
		intervalMS = sc.RepeatInterval.Milliseconds()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(schedule_id, user_id, device_id, name, days, start_time,
		                       action, action_params, active, repeat, repeat_interval_ms, last_fired_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(schedule_id) DO UPDATE SET
		   user_id=excluded.user_id, device_id=excluded.device_id, name=excluded.name,
		   days=excluded.days, start_time=excluded.start_time, action=excluded.action,
		   action_params=excluded.action_params, active=excluded.active,
		   repeat=excluded.repeat, repeat_interval_ms=excluded.repeat_interval_ms,
		   last_fired_ms=excluded.last_fired_ms`,
		sc.ID, sc.UserID, sc.DeviceID, sc.Name, sc.Days.String(), sc.Start.String(),
		sc.Action.Name, params, boolInt(sc.Active), string(sc.EffectiveRepeat()),
		intervalMS, msOrNil(sc.LastFired))
	return err
}

func (s *sqliteStore) PutDevice(ctx context.Context, d model.Device) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices(device_id, user_id, name, type, reported_state, desired_state,
		                     online, last_connection_ms, last_command_ms, last_schedule_id)
		 VALUES(?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(device_id) DO UPDATE SET
		   user_id=excluded.user_id, name=excluded.name, type=excluded.type,
		   reported_state=excluded.reported_state, desired_state=excluded.desired_state,
		   online=excluded.online, last_connection_ms=excluded.last_connection_ms,
		   last_command_ms=excluded.last_command_ms, last_schedule_id=excluded.last_schedule_id`,
		d.ID, d.UserID, d.Name, d.Type, d.ReportedState, d.DesiredState,
		boolInt(d.Online), msOrNil(d.LastConnection), msOrNil(d.LastCommand), d.LastScheduleID)
	return err
}

func notFoundWhenZero(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func msOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func timeFromMS(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}
