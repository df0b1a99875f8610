package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/session-scheduling/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*schedule.Appointment, error) {
	var a schedule.Appointment
	var appliedRaw []byte

	err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.DoctorName,
		&a.PatientName,
		&a.Date,
		&a.Time,
		&a.ArriveBy,
		&a.SessionIndex,
		&a.SlotIndex,
		&a.Status,
		&a.TokenNumber,
		&a.BookedVia,
		&a.CancelledByBreak,
		&a.CutOff,
		&a.NoShow,
		&a.DelayMinutes,
		&a.BaseArriveBy,
		&a.BaseCutOff,
		&a.BaseNoShow,
		&appliedRaw,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if len(appliedRaw) > 0 {
		if err := json.Unmarshal(appliedRaw, &a.AppliedBreakIDs); err != nil {
			return nil, fmt.Errorf("decode applied break ids: %w", err)
		}
	}
	return &a, nil
}

const appointmentColumns = `
	id, clinic_id, doctor_name, patient_name, date, time, arrive_by, session_index,
	slot_index, status, token_number, booked_via, cancelled_by_break,
	cut_off, no_show, delay_minutes, base_arrive_by, base_cut_off,
	base_no_show, applied_break_ids, created_at, updated_at
`

func scanBreak(row pgx.Row) (*schedule.BreakPeriod, error) {
	var b schedule.BreakPeriod
	var slotsRaw []byte

	err := row.Scan(
		&b.ID,
		&b.StartTime,
		&b.EndTime,
		&b.DurationMinutes,
		&b.SessionIndex,
		&slotsRaw,
		&b.Kind,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBreakNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(slotsRaw, &b.Slots); err != nil {
		return nil, fmt.Errorf("decode break slots: %w", err)
	}
	return &b, nil
}

// Interface methods

func (r *PgRepository) GetDoctor(ctx context.Context, clinicID, name, date string) (*schedule.Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT clinic_id, name, availability, average_consulting_minutes
		FROM doctors
		WHERE clinic_id = $1 AND name = $2
	`, clinicID, name)

	var d schedule.Doctor
	var availRaw []byte
	if err := row.Scan(&d.ClinicID, &d.Name, &availRaw, &d.AverageConsultingMinutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(availRaw, &d.Availability); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	d.Breaks = map[string][]schedule.BreakPeriod{}
	d.Extensions = map[string][]schedule.SessionExtension{}

	breaks, err := r.listBreaks(ctx, clinicID, name, date)
	if err != nil {
		return nil, err
	}
	if len(breaks) > 0 {
		d.Breaks[date] = breaks
	}

	exts, err := r.listExtensions(ctx, clinicID, name, date)
	if err != nil {
		return nil, err
	}
	if len(exts) > 0 {
		d.Extensions[date] = exts
	}

	return &d, nil
}

func (r *PgRepository) listBreaks(ctx context.Context, clinicID, doctorName, date string) ([]schedule.BreakPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, start_time, end_time, duration_minutes, session_index, slots, kind
		FROM break_periods
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3
		ORDER BY start_time
	`, clinicID, doctorName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.BreakPeriod
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *PgRepository) listExtensions(ctx context.Context, clinicID, doctorName, date string) ([]schedule.SessionExtension, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_index, total_extended_minutes, original_end, new_end
		FROM session_extensions
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3
		ORDER BY session_index
	`, clinicID, doctorName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.SessionExtension
	for rows.Next() {
		var e schedule.SessionExtension
		if err := rows.Scan(&e.SessionIndex, &e.TotalExtendedMinutes, &e.OriginalEnd, &e.NewEnd); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetClinicSettings(ctx context.Context, clinicID string) (*ClinicSettings, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT walkin_token_allotment, walkin_capacity_threshold, walkin_reserve_ratio
		FROM clinics
		WHERE id = $1
	`, clinicID)

	var s ClinicSettings
	if err := row.Scan(&s.WalkInTokenAllotment, &s.WalkInCapacityThreshold, &s.WalkInReserveRatio); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("clinic %s not found", clinicID)
		}
		return nil, err
	}
	return &s, nil
}

func (r *PgRepository) ListSessionAppointments(ctx context.Context, clinicID, doctorName, date string, sessionIndex int) ([]schedule.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3 AND session_index = $4
		ORDER BY slot_index
	`, clinicID, doctorName, date, sessionIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListDayAppointments(ctx context.Context, clinicID, doctorName, date string) ([]schedule.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3
		ORDER BY session_index, slot_index
	`, clinicID, doctorName, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]schedule.Appointment, error) {
	var out []schedule.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentTimes(ctx context.Context, a *schedule.Appointment) error {
	applied, err := json.Marshal(a.AppliedBreakIDs)
	if err != nil {
		return fmt.Errorf("encode applied break ids: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET arrive_by = $2,
		    cut_off = $3,
		    no_show = $4,
		    delay_minutes = $5,
		    status = $6,
		    cancelled_by_break = $7,
		    applied_break_ids = $8,
		    updated_at = now()
		WHERE id = $1
	`, a.ID, a.ArriveBy, a.CutOff, a.NoShow, a.DelayMinutes, a.Status, a.CancelledByBreak, applied)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// ReplaceSessionBreaks swaps the session's break rows and upserts its
// extension entry in a single transaction, using a batch for the inserts.
func (r *PgRepository) ReplaceSessionBreaks(ctx context.Context, key SessionKey, breaks []schedule.BreakPeriod, ext schedule.SessionExtension) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM break_periods
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3 AND session_index = $4
	`, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	if err != nil {
		return fmt.Errorf("clear break rows: %w", err)
	}

	batch := &pgx.Batch{}
	for _, b := range breaks {
		slots, err := json.Marshal(b.Slots)
		if err != nil {
			return fmt.Errorf("encode break slots: %w", err)
		}
		batch.Queue(`
			INSERT INTO break_periods
				(id, clinic_id, doctor_name, date, session_index, start_time, end_time, duration_minutes, slots, kind)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, b.ID, key.ClinicID, key.DoctorName, key.Date, b.SessionIndex, b.StartTime, b.EndTime, b.DurationMinutes, slots, b.Kind)
	}
	batch.Queue(`
		INSERT INTO session_extensions
			(clinic_id, doctor_name, date, session_index, total_extended_minutes, original_end, new_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (clinic_id, doctor_name, date, session_index)
		DO UPDATE SET total_extended_minutes = EXCLUDED.total_extended_minutes,
		              original_end = EXCLUDED.original_end,
		              new_end = EXCLUDED.new_end
	`, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex, ext.TotalExtendedMinutes, ext.OriginalEnd, ext.NewEnd)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write break set: %w", err)
	}

	return tx.Commit(ctx)
}

// ReserveSlot creates the claim and the appointment atomically. The unique
// index on (clinic_id, doctor_name, date, slot_index) makes the claim
// linearizable per slot: the second writer sees zero rows inserted.
func (r *PgRepository) ReserveSlot(ctx context.Context, a *schedule.Appointment) (*schedule.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO slot_reservations (clinic_id, doctor_name, date, slot_index, appointment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (clinic_id, doctor_name, date, slot_index) DO NOTHING
	`, a.ClinicID, a.DoctorName, a.Date, a.SlotIndex, a.ID)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, &SlotTakenError{DoctorName: a.DoctorName, Date: a.Date, SlotIndex: a.SlotIndex}
	}

	applied, err := json.Marshal(a.AppliedBreakIDs)
	if err != nil {
		return nil, fmt.Errorf("encode applied break ids: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ClinicID, a.DoctorName, a.PatientName, a.Date, a.Time, a.ArriveBy, a.SessionIndex,
		a.SlotIndex, a.Status, a.TokenNumber, a.BookedVia, a.CancelledByBreak,
		a.CutOff, a.NoShow, a.DelayMinutes, a.BaseArriveBy, a.BaseCutOff,
		a.BaseNoShow, applied)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ReleaseSlot(ctx context.Context, clinicID, doctorName, date string, slotIndex int) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM slot_reservations
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3 AND slot_index = $4
	`, clinicID, doctorName, date, slotIndex)
	return err
}

func (r *PgRepository) ReleaseBlockedSlots(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slot_reservations sr
		USING appointments a
		WHERE a.id = sr.appointment_id
		  AND a.cancelled_by_break
		  AND a.status = $1
		  AND sr.created_at < $2
	`, schedule.StatusCompleted, before)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) MarkSessionDirty(ctx context.Context, key SessionKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reconcile_queue (clinic_id, doctor_name, date, session_index, queued_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (clinic_id, doctor_name, date, session_index) DO NOTHING
	`, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	return err
}

func (r *PgRepository) ListDirtySessions(ctx context.Context, limit int) ([]SessionKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT clinic_id, doctor_name, date, session_index
		FROM reconcile_queue
		ORDER BY queued_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionKey
	for rows.Next() {
		var k SessionKey
		if err := rows.Scan(&k.ClinicID, &k.DoctorName, &k.Date, &k.SessionIndex); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *PgRepository) ClearSessionDirty(ctx context.Context, key SessionKey) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM reconcile_queue
		WHERE clinic_id = $1 AND doctor_name = $2 AND date = $3 AND session_index = $4
	`, key.ClinicID, key.DoctorName, key.Date, key.SessionIndex)
	return err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
