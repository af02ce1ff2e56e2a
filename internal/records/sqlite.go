package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore keeps domain records in a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.healthlens/records.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("records: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".healthlens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("records: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "records.db"), nil
}

// Open opens (or creates) the records database at path. Use ":memory:" in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("records: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS profiles (
    owner_id       TEXT PRIMARY KEY,
    date_of_birth  TEXT    NOT NULL DEFAULT '',
    biological_sex TEXT    NOT NULL DEFAULT '',
    blood_type     TEXT    NOT NULL DEFAULT '',
    height_cm      INTEGER NOT NULL DEFAULT 0,
    weight_kg      INTEGER NOT NULL DEFAULT 0,
    source         TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS appointments (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id    TEXT NOT NULL,
    doctor_id   TEXT NOT NULL DEFAULT '',
    doctor_name TEXT NOT NULL,
    specialty   TEXT NOT NULL DEFAULT '',
    date        TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'scheduled'
);
CREATE INDEX IF NOT EXISTS idx_appointments_owner ON appointments (owner_id);
CREATE INDEX IF NOT EXISTS idx_appointments_doctor ON appointments (doctor_id, owner_id);
CREATE TABLE IF NOT EXISTS medications (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id   TEXT    NOT NULL,
    name       TEXT    NOT NULL,
    dosage     TEXT    NOT NULL DEFAULT '',
    frequency  TEXT    NOT NULL DEFAULT '',
    start_date TEXT    NOT NULL DEFAULT '',
    end_date   TEXT    NOT NULL DEFAULT '',
    notes      TEXT    NOT NULL DEFAULT '',
    active     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_medications_owner ON medications (owner_id, active);
CREATE TABLE IF NOT EXISTS health_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id    TEXT NOT NULL,
    kind        TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    file_url    TEXT NOT NULL DEFAULT '',
    date        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_health_records_owner ON health_records (owner_id);
CREATE TABLE IF NOT EXISTS sleep_records (
    owner_id      TEXT    NOT NULL,
    date          TEXT    NOT NULL,
    total_minutes INTEGER NOT NULL,
    PRIMARY KEY (owner_id, date)
);
CREATE TABLE IF NOT EXISTS activity_records (
    owner_id TEXT    NOT NULL,
    date     TEXT    NOT NULL,
    steps    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_id, date)
);
CREATE TABLE IF NOT EXISTS vital_records (
    owner_id          TEXT    NOT NULL,
    recorded_at       TEXT    NOT NULL,
    heart_rate        INTEGER NOT NULL DEFAULT 0,
    oxygen_saturation INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (owner_id, recorded_at)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("records: migrate: %w", err)
	}
	return nil
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func fmtDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeLayout)
}

func parseTime(layout, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(layout, s)
}

// SaveProfile inserts or replaces the owner's profile.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p Profile) error {
	if p.OwnerID == "" {
		return fmt.Errorf("records: save profile: owner id is required")
	}
	const q = `
INSERT INTO profiles (owner_id, date_of_birth, biological_sex, blood_type, height_cm, weight_kg, source)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(owner_id) DO UPDATE SET
    date_of_birth = excluded.date_of_birth, biological_sex = excluded.biological_sex,
    blood_type = excluded.blood_type, height_cm = excluded.height_cm,
    weight_kg = excluded.weight_kg, source = excluded.source`
	_, err := s.db.ExecContext(ctx, q, p.OwnerID, fmtDate(p.DateOfBirth), p.BiologicalSex, p.BloodType, p.HeightCM, p.WeightKG, p.Source)
	if err != nil {
		return fmt.Errorf("records: save profile: %w", err)
	}
	return nil
}

// Profile returns the owner's profile, or nil when none is stored.
func (s *SQLiteStore) Profile(ctx context.Context, ownerID string) (*Profile, error) {
	const q = `SELECT date_of_birth, biological_sex, blood_type, height_cm, weight_kg, source FROM profiles WHERE owner_id = ?`
	var (
		p   = Profile{OwnerID: ownerID}
		dob string
	)
	err := s.db.QueryRowContext(ctx, q, ownerID).Scan(&dob, &p.BiologicalSex, &p.BloodType, &p.HeightCM, &p.WeightKG, &p.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("records: profile: %w", err)
	}
	if p.DateOfBirth, err = parseTime(dateLayout, dob); err != nil {
		return nil, fmt.Errorf("records: profile: date of birth: %w", err)
	}
	return &p, nil
}

// SaveAppointment inserts a (zero ID) or updates an appointment and returns
// it with its ID set.
func (s *SQLiteStore) SaveAppointment(ctx context.Context, a Appointment) (Appointment, error) {
	if a.OwnerID == "" || a.DoctorName == "" {
		return a, fmt.Errorf("records: save appointment: owner id and doctor name are required")
	}
	if a.Status == "" {
		a.Status = "scheduled"
	}
	if a.ID == 0 {
		const q = `INSERT INTO appointments (owner_id, doctor_id, doctor_name, specialty, date, reason, status) VALUES (?, ?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, q, a.OwnerID, a.DoctorID, a.DoctorName, a.Specialty, fmtDateTime(a.Date), a.Reason, a.Status)
		if err != nil {
			return a, fmt.Errorf("records: save appointment: %w", err)
		}
		a.ID, err = res.LastInsertId()
		if err != nil {
			return a, fmt.Errorf("records: save appointment: %w", err)
		}
		return a, nil
	}
	const q = `
INSERT INTO appointments (id, owner_id, doctor_id, doctor_name, specialty, date, reason, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    doctor_id = excluded.doctor_id, doctor_name = excluded.doctor_name, specialty = excluded.specialty,
    date = excluded.date, reason = excluded.reason, status = excluded.status
WHERE appointments.owner_id = excluded.owner_id`
	res, err := s.db.ExecContext(ctx, q, a.ID, a.OwnerID, a.DoctorID, a.DoctorName, a.Specialty, fmtDateTime(a.Date), a.Reason, a.Status)
	if err != nil {
		return a, fmt.Errorf("records: save appointment %d: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, fmt.Errorf("records: save appointment %d: %w", a.ID, ErrNotFound)
	}
	return a, nil
}

// DeleteAppointment removes one of the owner's appointments.
func (s *SQLiteStore) DeleteAppointment(ctx context.Context, ownerID string, id int64) error {
	return s.deleteOwned(ctx, "appointments", ownerID, id)
}

// Appointments returns the owner's appointments, most recent first.
func (s *SQLiteStore) Appointments(ctx context.Context, ownerID string) ([]Appointment, error) {
	const q = `
SELECT id, doctor_id, doctor_name, specialty, date, reason, status
FROM   appointments WHERE owner_id = ? ORDER BY date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("records: appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a := Appointment{OwnerID: ownerID}
		var date string
		if err := rows.Scan(&a.ID, &a.DoctorID, &a.DoctorName, &a.Specialty, &date, &a.Reason, &a.Status); err != nil {
			return nil, fmt.Errorf("records: appointments scan: %w", err)
		}
		if a.Date, err = parseTime(dateTimeLayout, date); err != nil {
			return nil, fmt.Errorf("records: appointment %d date: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: appointments rows: %w", err)
	}
	return out, nil
}

// HasAppointmentWith reports whether the clinician has at least one
// appointment with the patient. It is the care relationship that entitles a
// clinician to ask about a patient.
func (s *SQLiteStore) HasAppointmentWith(ctx context.Context, clinicianID, patientID string) (bool, error) {
	if clinicianID == "" || patientID == "" {
		return false, nil
	}
	const q = `SELECT EXISTS(SELECT 1 FROM appointments WHERE doctor_id = ? AND owner_id = ?)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, q, clinicianID, patientID).Scan(&ok); err != nil {
		return false, fmt.Errorf("records: care relationship: %w", err)
	}
	return ok, nil
}

// SaveMedication inserts a (zero ID) or updates a medication and returns it
// with its ID set.
func (s *SQLiteStore) SaveMedication(ctx context.Context, m Medication) (Medication, error) {
	if m.OwnerID == "" || m.Name == "" {
		return m, fmt.Errorf("records: save medication: owner id and name are required")
	}
	if m.ID == 0 {
		const q = `INSERT INTO medications (owner_id, name, dosage, frequency, start_date, end_date, notes, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, q, m.OwnerID, m.Name, m.Dosage, m.Frequency, fmtDate(m.StartDate), fmtDate(m.EndDate), m.Notes, m.Active)
		if err != nil {
			return m, fmt.Errorf("records: save medication: %w", err)
		}
		m.ID, err = res.LastInsertId()
		if err != nil {
			return m, fmt.Errorf("records: save medication: %w", err)
		}
		return m, nil
	}
	const q = `
INSERT INTO medications (id, owner_id, name, dosage, frequency, start_date, end_date, notes, active) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name, dosage = excluded.dosage, frequency = excluded.frequency,
    start_date = excluded.start_date, end_date = excluded.end_date, notes = excluded.notes, active = excluded.active
WHERE medications.owner_id = excluded.owner_id`
	res, err := s.db.ExecContext(ctx, q, m.ID, m.OwnerID, m.Name, m.Dosage, m.Frequency, fmtDate(m.StartDate), fmtDate(m.EndDate), m.Notes, m.Active)
	if err != nil {
		return m, fmt.Errorf("records: save medication %d: %w", m.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return m, fmt.Errorf("records: save medication %d: %w", m.ID, ErrNotFound)
	}
	return m, nil
}

// DeactivateMedication marks one of the owner's medications inactive.
func (s *SQLiteStore) DeactivateMedication(ctx context.Context, ownerID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE medications SET active = 0 WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("records: deactivate medication %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("records: deactivate medication %d: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveMedications returns the owner's active medications.
func (s *SQLiteStore) ActiveMedications(ctx context.Context, ownerID string) ([]Medication, error) {
	const q = `
SELECT id, name, dosage, frequency, start_date, end_date, notes
FROM   medications WHERE owner_id = ? AND active = 1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("records: medications: %w", err)
	}
	defer rows.Close()

	var out []Medication
	for rows.Next() {
		m := Medication{OwnerID: ownerID, Active: true}
		var start, end string
		if err := rows.Scan(&m.ID, &m.Name, &m.Dosage, &m.Frequency, &start, &end, &m.Notes); err != nil {
			return nil, fmt.Errorf("records: medications scan: %w", err)
		}
		if m.StartDate, err = parseTime(dateLayout, start); err != nil {
			return nil, fmt.Errorf("records: medication %d start date: %w", m.ID, err)
		}
		if m.EndDate, err = parseTime(dateLayout, end); err != nil {
			return nil, fmt.Errorf("records: medication %d end date: %w", m.ID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: medications rows: %w", err)
	}
	return out, nil
}

// SaveHealthRecord inserts a (zero ID) or updates a health record and returns
// it with its ID set.
func (s *SQLiteStore) SaveHealthRecord(ctx context.Context, r HealthRecord) (HealthRecord, error) {
	if r.OwnerID == "" || r.Title == "" {
		return r, fmt.Errorf("records: save health record: owner id and title are required")
	}
	if r.ID == 0 {
		const q = `INSERT INTO health_records (owner_id, kind, title, description, file_url, date) VALUES (?, ?, ?, ?, ?, ?)`
		res, err := s.db.ExecContext(ctx, q, r.OwnerID, r.Kind, r.Title, r.Description, r.FileURL, fmtDate(r.Date))
		if err != nil {
			return r, fmt.Errorf("records: save health record: %w", err)
		}
		r.ID, err = res.LastInsertId()
		if err != nil {
			return r, fmt.Errorf("records: save health record: %w", err)
		}
		return r, nil
	}
	const q = `
INSERT INTO health_records (id, owner_id, kind, title, description, file_url, date) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind = excluded.kind, title = excluded.title, description = excluded.description,
    file_url = excluded.file_url, date = excluded.date
WHERE health_records.owner_id = excluded.owner_id`
	res, err := s.db.ExecContext(ctx, q, r.ID, r.OwnerID, r.Kind, r.Title, r.Description, r.FileURL, fmtDate(r.Date))
	if err != nil {
		return r, fmt.Errorf("records: save health record %d: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r, fmt.Errorf("records: save health record %d: %w", r.ID, ErrNotFound)
	}
	return r, nil
}

// DeleteHealthRecord removes one of the owner's health records.
func (s *SQLiteStore) DeleteHealthRecord(ctx context.Context, ownerID string, id int64) error {
	return s.deleteOwned(ctx, "health_records", ownerID, id)
}

// HealthRecords returns the owner's health records, most recent first.
func (s *SQLiteStore) HealthRecords(ctx context.Context, ownerID string) ([]HealthRecord, error) {
	const q = `
SELECT id, kind, title, description, file_url, date
FROM   health_records WHERE owner_id = ? ORDER BY date DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("records: health records: %w", err)
	}
	defer rows.Close()

	var out []HealthRecord
	for rows.Next() {
		r := HealthRecord{OwnerID: ownerID}
		var date string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Title, &r.Description, &r.FileURL, &date); err != nil {
			return nil, fmt.Errorf("records: health records scan: %w", err)
		}
		if r.Date, err = parseTime(dateLayout, date); err != nil {
			return nil, fmt.Errorf("records: health record %d date: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: health records rows: %w", err)
	}
	return out, nil
}

// AddSleep upserts sleep records keyed by owner and date.
func (s *SQLiteStore) AddSleep(ctx context.Context, recs []SleepRecord) error {
	const q = `INSERT INTO sleep_records (owner_id, date, total_minutes) VALUES (?, ?, ?)
ON CONFLICT(owner_id, date) DO UPDATE SET total_minutes = excluded.total_minutes`
	return s.batch(ctx, "sleep", q, len(recs), func(i int) []any {
		r := recs[i]
		return []any{r.OwnerID, fmtDate(r.Date), r.TotalMinutes}
	})
}

// AddActivity upserts activity records keyed by owner and date.
func (s *SQLiteStore) AddActivity(ctx context.Context, recs []ActivityRecord) error {
	const q = `INSERT INTO activity_records (owner_id, date, steps) VALUES (?, ?, ?)
ON CONFLICT(owner_id, date) DO UPDATE SET steps = excluded.steps`
	return s.batch(ctx, "activity", q, len(recs), func(i int) []any {
		r := recs[i]
		return []any{r.OwnerID, fmtDate(r.Date), r.Steps}
	})
}

// AddVitals upserts vital readings keyed by owner and timestamp.
func (s *SQLiteStore) AddVitals(ctx context.Context, recs []VitalRecord) error {
	const q = `INSERT INTO vital_records (owner_id, recorded_at, heart_rate, oxygen_saturation) VALUES (?, ?, ?, ?)
ON CONFLICT(owner_id, recorded_at) DO UPDATE SET heart_rate = excluded.heart_rate, oxygen_saturation = excluded.oxygen_saturation`
	return s.batch(ctx, "vitals", q, len(recs), func(i int) []any {
		r := recs[i]
		return []any{r.OwnerID, fmtDateTime(r.RecordedAt), r.HeartRate, r.OxygenSaturation}
	})
}

// RecentSleep returns up to n of the owner's sleep records, newest first.
func (s *SQLiteStore) RecentSleep(ctx context.Context, ownerID string, n int) ([]SleepRecord, error) {
	const q = `SELECT date, total_minutes FROM sleep_records WHERE owner_id = ? ORDER BY date DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("records: sleep: %w", err)
	}
	defer rows.Close()

	var out []SleepRecord
	for rows.Next() {
		r := SleepRecord{OwnerID: ownerID}
		var date string
		if err := rows.Scan(&date, &r.TotalMinutes); err != nil {
			return nil, fmt.Errorf("records: sleep scan: %w", err)
		}
		if r.Date, err = parseTime(dateLayout, date); err != nil {
			return nil, fmt.Errorf("records: sleep date: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: sleep rows: %w", err)
	}
	return out, nil
}

// RecentActivity returns up to n of the owner's activity records, newest first.
func (s *SQLiteStore) RecentActivity(ctx context.Context, ownerID string, n int) ([]ActivityRecord, error) {
	const q = `SELECT date, steps FROM activity_records WHERE owner_id = ? ORDER BY date DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("records: activity: %w", err)
	}
	defer rows.Close()

	var out []ActivityRecord
	for rows.Next() {
		r := ActivityRecord{OwnerID: ownerID}
		var date string
		if err := rows.Scan(&date, &r.Steps); err != nil {
			return nil, fmt.Errorf("records: activity scan: %w", err)
		}
		if r.Date, err = parseTime(dateLayout, date); err != nil {
			return nil, fmt.Errorf("records: activity date: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: activity rows: %w", err)
	}
	return out, nil
}

// RecentVitals returns up to n of the owner's vital readings, newest first.
func (s *SQLiteStore) RecentVitals(ctx context.Context, ownerID string, n int) ([]VitalRecord, error) {
	const q = `SELECT recorded_at, heart_rate, oxygen_saturation FROM vital_records WHERE owner_id = ? ORDER BY recorded_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("records: vitals: %w", err)
	}
	defer rows.Close()

	var out []VitalRecord
	for rows.Next() {
		r := VitalRecord{OwnerID: ownerID}
		var at string
		if err := rows.Scan(&at, &r.HeartRate, &r.OxygenSaturation); err != nil {
			return nil, fmt.Errorf("records: vitals scan: %w", err)
		}
		if r.RecordedAt, err = parseTime(dateTimeLayout, at); err != nil {
			return nil, fmt.Errorf("records: vitals timestamp: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("records: vitals rows: %w", err)
	}
	return out, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("records: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("records: close: %w", err)
	}
	return nil
}

// deleteOwned removes row id from table when it belongs to ownerID. table is
// always a package constant.
func (s *SQLiteStore) deleteOwned(ctx context.Context, table, ownerID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("records: delete %s %d: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("records: delete %s %d: %w", table, id, ErrNotFound)
	}
	return nil
}

// batch runs q once per row inside a single transaction.
func (s *SQLiteStore) batch(ctx context.Context, what, q string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("records: add %s: %w", what, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("records: add %s: %w", what, err)
	}
	defer stmt.Close()

	for i := range n {
		a := args(i)
		if a[0] == "" {
			return fmt.Errorf("records: add %s: row %d has no owner id", what, i)
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return fmt.Errorf("records: add %s row %d: %w", what, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("records: add %s: commit: %w", what, err)
	}
	return nil
}

var _ Source = (*SQLiteStore)(nil)
