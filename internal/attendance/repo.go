package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// OwnsClass reports whether the class row names teacherID as its owner.
func (r *Repository) OwnsClass(ctx context.Context, teacherID, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM classes WHERE id = $1 AND teacher_id = $2)
	`, classID, teacherID).Scan(&ok)
	return ok, err
}

// IsEnrolled reports whether an enrollment row exists for the pair.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM enrollments WHERE class_id = $1 AND student_id = $2)
	`, classID, studentID).Scan(&ok)
	return ok, err
}

// GetClass returns a class by id.
func (r *Repository) GetClass(ctx context.Context, classID string) (*Class, error) {
	var c Class
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, teacher_id FROM classes WHERE id = $1
	`, classID).Scan(&c.ID, &c.Name, &c.TeacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const recordColumns = `a.id, a.class_id, a.student_id, to_char(a.date, 'YYYY-MM-DD'), a.marked, a.signal_strength, a.scan_payload, a.created_at`

func scanRecord(row interface{ Scan(...any) error }, rec *Record, extra ...any) error {
	dest := []any{&rec.ID, &rec.ClassID, &rec.StudentID, &rec.Date, &rec.Marked, &rec.SignalStrength, &rec.ScanPayload, &rec.CreatedAt}
	return row.Scan(append(dest, extra...)...)
}

// FindRecord returns the record for the (class, student, date) key.
func (r *Repository) FindRecord(ctx context.Context, classID, studentID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance a
		WHERE a.class_id = $1 AND a.student_id = $2 AND a.date = $3::date
	`, classID, studentID, date)
	var rec Record
	if err := scanRecord(row, &rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes a new record. The unique index on (class_id, student_id, date)
// turns a concurrent second insert into ErrDuplicateKey.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, class_id, student_id, date, marked, signal_strength, scan_payload, created_at)
		VALUES ($1, $2, $3, $4::date, TRUE, $5, $6, $7)
		RETURNING created_at
	`, rec.ID, rec.ClassID, rec.StudentID, rec.Date, rec.SignalStrength, rec.ScanPayload, rec.CreatedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, fmt.Errorf("insert attendance: %w", ErrDuplicateKey)
		}
		return Record{}, err
	}
	rec.Marked = true
	return rec, nil
}

// ListClassAttendance returns a class's records joined with student identity.
func (r *Repository) ListClassAttendance(ctx context.Context, classID, date string) ([]StudentAttendance, error) {
	query := `
		SELECT ` + recordColumns + `, u.name, u.email
		FROM attendance a
		JOIN users u ON u.id = a.student_id
		WHERE a.class_id = $1`
	args := []any{classID}
	if date != "" {
		query += ` AND a.date = $2::date`
		args = append(args, date)
	}
	query += ` ORDER BY a.date DESC, a.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []StudentAttendance{}
	for rows.Next() {
		var sa StudentAttendance
		if err := scanRecord(rows, &sa.Record, &sa.StudentName, &sa.StudentEmail); err != nil {
			return nil, err
		}
		res = append(res, sa)
	}
	return res, rows.Err()
}

// ListStudentAttendance returns a student's records joined with class identity.
func (r *Repository) ListStudentAttendance(ctx context.Context, studentID string) ([]ClassAttendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`, c.name
		FROM attendance a
		JOIN classes c ON c.id = a.class_id
		WHERE a.student_id = $1
		ORDER BY a.date DESC, a.created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ClassAttendance{}
	for rows.Next() {
		var ca ClassAttendance
		if err := scanRecord(rows, &ca.Record, &ca.ClassName); err != nil {
			return nil, err
		}
		res = append(res, ca)
	}
	return res, rows.Err()
}

// isUniqueViolation reports whether err carries a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
