// Package records is the system of record for the domain data the insight
// engine indexes: profiles, appointments, medications, health records and
// the sleep, activity and vitals series. Facts in the index are a derived
// projection of what this package stores and can always be rebuilt from it.
package records

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist for the given owner.
var ErrNotFound = errors.New("records: not found")

// Profile is an owner's personal health profile. Zero values mean unknown.
type Profile struct {
	OwnerID       string    `yaml:"-"`
	DateOfBirth   time.Time `yaml:"date_of_birth"`
	BiologicalSex string    `yaml:"biological_sex"`
	BloodType     string    `yaml:"blood_type"`
	HeightCM      int       `yaml:"height_cm"`
	WeightKG      int       `yaml:"weight_kg"`
	// Source names where the profile came from, e.g. health_profile.
	Source string `yaml:"source"`
}

// Appointment is a booked visit.
type Appointment struct {
	ID         int64     `yaml:"id"`
	OwnerID    string    `yaml:"-"`
	DoctorID   string    `yaml:"doctor_id"`
	DoctorName string    `yaml:"doctor_name"`
	Specialty  string    `yaml:"specialty"`
	Date       time.Time `yaml:"date"`
	Reason     string    `yaml:"reason"`
	// Status is scheduled, completed or cancelled.
	Status string `yaml:"status"`
}

// Medication is a prescribed or self-reported medication.
type Medication struct {
	ID        int64     `yaml:"id"`
	OwnerID   string    `yaml:"-"`
	Name      string    `yaml:"name"`
	Dosage    string    `yaml:"dosage"`
	Frequency string    `yaml:"frequency"`
	StartDate time.Time `yaml:"start_date"`
	EndDate   time.Time `yaml:"end_date"`
	Notes     string    `yaml:"notes"`
	Active    bool      `yaml:"active"`
}

// HealthRecord is a lab result, diagnosis, prescription or similar document.
type HealthRecord struct {
	ID      int64  `yaml:"id"`
	OwnerID string `yaml:"-"`
	// Kind is the document category, e.g. lab_result.
	Kind        string `yaml:"kind"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	// FileURL points at an uploaded attachment; its base name is the file
	// name inside the upload directory.
	FileURL string    `yaml:"file_url"`
	Date    time.Time `yaml:"date"`
}

// SleepRecord is one night of sleep.
type SleepRecord struct {
	OwnerID      string    `yaml:"-"`
	Date         time.Time `yaml:"date"`
	TotalMinutes int       `yaml:"total_minutes"`
}

// ActivityRecord is one day of activity.
type ActivityRecord struct {
	OwnerID string    `yaml:"-"`
	Date    time.Time `yaml:"date"`
	Steps   int       `yaml:"steps"`
}

// VitalRecord is one vital-signs reading. Zero means not measured.
type VitalRecord struct {
	OwnerID          string    `yaml:"-"`
	RecordedAt       time.Time `yaml:"recorded_at"`
	HeartRate        int       `yaml:"heart_rate"`
	OxygenSaturation int       `yaml:"oxygen_saturation"`
}

// Source is the read side of the record store used to derive facts.
// Series methods return at most n records, newest first.
type Source interface {
	Profile(ctx context.Context, ownerID string) (*Profile, error)
	Appointments(ctx context.Context, ownerID string) ([]Appointment, error)
	ActiveMedications(ctx context.Context, ownerID string) ([]Medication, error)
	HealthRecords(ctx context.Context, ownerID string) ([]HealthRecord, error)
	RecentSleep(ctx context.Context, ownerID string, n int) ([]SleepRecord, error)
	RecentActivity(ctx context.Context, ownerID string, n int) ([]ActivityRecord, error)
	RecentVitals(ctx context.Context, ownerID string, n int) ([]VitalRecord, error)
}
