package records

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Bundle is a batch of one owner's records, as exported by a health app or
// prepared by hand. Owner ids are taken from the import call, never the file.
//
//	profile:
//	  blood_type: O+
//	  height_cm: 180
//	medications:
//	  - name: Aspirin
//	    dosage: 100mg
//	    active: true
//	sleep:
//	  - {date: 2026-03-01, total_minutes: 420}
type Bundle struct {
	Profile       *Profile         `yaml:"profile"`
	Appointments  []Appointment    `yaml:"appointments"`
	Medications   []Medication     `yaml:"medications"`
	HealthRecords []HealthRecord   `yaml:"health_records"`
	Sleep         []SleepRecord    `yaml:"sleep"`
	Activity      []ActivityRecord `yaml:"activity"`
	Vitals        []VitalRecord    `yaml:"vitals"`
}

// DecodeBundle parses a YAML bundle. Unknown keys are rejected.
func DecodeBundle(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return &b, nil
		}
		return nil, fmt.Errorf("records: decode bundle: %w", err)
	}
	return &b, nil
}

// Import writes every record in b under ownerID and returns the stored copy,
// with IDs assigned to new appointments, medications and health records.
func (s *SQLiteStore) Import(ctx context.Context, ownerID string, b *Bundle) (*Bundle, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("records: import: owner id is required")
	}
	out := &Bundle{}
	if b.Profile != nil {
		p := *b.Profile
		p.OwnerID = ownerID
		if err := s.SaveProfile(ctx, p); err != nil {
			return nil, err
		}
		out.Profile = &p
	}
	for _, a := range b.Appointments {
		a.OwnerID = ownerID
		saved, err := s.SaveAppointment(ctx, a)
		if err != nil {
			return nil, err
		}
		out.Appointments = append(out.Appointments, saved)
	}
	for _, m := range b.Medications {
		m.OwnerID = ownerID
		saved, err := s.SaveMedication(ctx, m)
		if err != nil {
			return nil, err
		}
		out.Medications = append(out.Medications, saved)
	}
	for _, r := range b.HealthRecords {
		r.OwnerID = ownerID
		saved, err := s.SaveHealthRecord(ctx, r)
		if err != nil {
			return nil, err
		}
		out.HealthRecords = append(out.HealthRecords, saved)
	}

	out.Sleep = withOwner(b.Sleep, ownerID, func(r *SleepRecord) *string { return &r.OwnerID })
	if err := s.AddSleep(ctx, out.Sleep); err != nil {
		return nil, err
	}
	out.Activity = withOwner(b.Activity, ownerID, func(r *ActivityRecord) *string { return &r.OwnerID })
	if err := s.AddActivity(ctx, out.Activity); err != nil {
		return nil, err
	}
	out.Vitals = withOwner(b.Vitals, ownerID, func(r *VitalRecord) *string { return &r.OwnerID })
	if err := s.AddVitals(ctx, out.Vitals); err != nil {
		return nil, err
	}
	return out, nil
}

// withOwner returns a copy of recs with each owner field set to ownerID.
func withOwner[T any](recs []T, ownerID string, field func(*T) *string) []T {
	out := make([]T, len(recs))
	copy(out, recs)
	for i := range out {
		*field(&out[i]) = ownerID
	}
	return out
}
