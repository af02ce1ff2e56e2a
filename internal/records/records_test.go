package records

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory records: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func Test_Records_ProfileUpsert(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if p, err := s.Profile(ctx, "1"); err != nil || p != nil {
		t.Fatalf("want nil profile before save, got %+v, %v", p, err)
	}
	if err := s.SaveProfile(ctx, Profile{OwnerID: "1", BloodType: "O+", HeightCM: 180, DateOfBirth: day("1990-04-12")}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveProfile(ctx, Profile{OwnerID: "1", BloodType: "O+", HeightCM: 180, WeightKG: 75, DateOfBirth: day("1990-04-12")}); err != nil {
		t.Fatalf("resave: %v", err)
	}
	p, err := s.Profile(ctx, "1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.WeightKG != 75 || !p.DateOfBirth.Equal(day("1990-04-12")) {
		t.Errorf("unexpected profile %+v", p)
	}
}

func Test_Records_AppointmentLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.SaveAppointment(ctx, Appointment{OwnerID: "1", DoctorID: "d7", DoctorName: "Lee", Specialty: "Cardiology", Date: time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if a.ID == 0 || a.Status != "scheduled" {
		t.Fatalf("want assigned id and default status, got %+v", a)
	}

	ok, err := s.HasAppointmentWith(ctx, "d7", "1")
	if err != nil || !ok {
		t.Errorf("want care relationship, got %v, %v", ok, err)
	}
	if ok, _ := s.HasAppointmentWith(ctx, "d7", "2"); ok {
		t.Error("clinician has no appointment with patient 2")
	}

	a.Reason = "follow-up"
	if _, err := s.SaveAppointment(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	other := a
	other.OwnerID = "2"
	if _, err := s.SaveAppointment(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating another owner's appointment: want ErrNotFound, got %v", err)
	}

	got, err := s.Appointments(ctx, "1")
	if err != nil || len(got) != 1 || got[0].Reason != "follow-up" {
		t.Fatalf("unexpected appointments %+v, %v", got, err)
	}

	if err := s.DeleteAppointment(ctx, "2", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete by wrong owner: want ErrNotFound, got %v", err)
	}
	if err := s.DeleteAppointment(ctx, "1", a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.Appointments(ctx, "1"); len(got) != 0 {
		t.Errorf("want no appointments after delete, got %d", len(got))
	}
}

func Test_Records_ActiveMedicationsOnly(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	asp, err := s.SaveMedication(ctx, Medication{OwnerID: "1", Name: "Aspirin", Dosage: "100mg", Active: true})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveMedication(ctx, Medication{OwnerID: "1", Name: "Ibuprofen", Active: false}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.ActiveMedications(ctx, "1")
	if err != nil || len(got) != 1 || got[0].Name != "Aspirin" {
		t.Fatalf("want only Aspirin, got %+v, %v", got, err)
	}

	if err := s.DeactivateMedication(ctx, "1", asp.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got, _ := s.ActiveMedications(ctx, "1"); len(got) != 0 {
		t.Errorf("want no active medications, got %+v", got)
	}
}

func Test_Records_SeriesNewestFirst(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	var sleep []SleepRecord
	for i := 1; i <= 40; i++ {
		sleep = append(sleep, SleepRecord{OwnerID: "1", Date: day("2026-01-01").AddDate(0, 0, i), TotalMinutes: 400 + i})
	}
	if err := s.AddSleep(ctx, sleep); err != nil {
		t.Fatalf("add sleep: %v", err)
	}
	got, err := s.RecentSleep(ctx, "1", 30)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 30 || got[0].TotalMinutes != 440 {
		t.Errorf("want 30 newest first, got %d starting %+v", len(got), got[0])
	}

	if err := s.AddVitals(ctx, []VitalRecord{{OwnerID: "1", RecordedAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), HeartRate: 62, OxygenSaturation: 98}}); err != nil {
		t.Fatalf("add vitals: %v", err)
	}
	v, err := s.RecentVitals(ctx, "1", 30)
	if err != nil || len(v) != 1 || v[0].HeartRate != 62 {
		t.Errorf("unexpected vitals %+v, %v", v, err)
	}
	if err := s.AddActivity(ctx, []ActivityRecord{{Date: day("2026-01-02"), Steps: 10}}); err == nil {
		t.Error("expected error for record without owner")
	}
}

func Test_Records_ImportBundle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	const doc = `
profile:
  blood_type: A+
  height_cm: 172
  weight_kg: 68
  source: apple_health_export
medications:
  - name: Aspirin
    dosage: 100mg
    frequency: once daily
    start_date: 2026-01-10
    active: true
health_records:
  - kind: lab_result
    title: Lipid panel
    description: LDL 96 mg/dL
    file_url: /health-records/download/9_lipids.pdf
    date: 2026-02-01
activity:
  - {date: 2026-03-01, steps: 8200}
  - {date: 2026-03-02, steps: 10400}
`
	b, err := DecodeBundle(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	saved, err := s.Import(ctx, "9", b)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if saved.Medications[0].ID == 0 || saved.HealthRecords[0].OwnerID != "9" {
		t.Errorf("import did not assign ids and owner: %+v", saved)
	}
	if b.Activity[0].OwnerID != "" {
		t.Error("import must not mutate the decoded bundle")
	}

	p, _ := s.Profile(ctx, "9")
	if p == nil || p.BloodType != "A+" {
		t.Errorf("profile not imported: %+v", p)
	}
	act, _ := s.RecentActivity(ctx, "9", 30)
	if len(act) != 2 || act[0].Steps != 10400 {
		t.Errorf("activity not imported newest first: %+v", act)
	}
}

func Test_Records_DecodeBundleRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	if _, err := DecodeBundle(strings.NewReader("owner_id: 5\n")); err == nil {
		t.Error("expected error for unknown key")
	}
	b, err := DecodeBundle(strings.NewReader(""))
	if err != nil || b == nil {
		t.Errorf("empty document should decode to an empty bundle, got %v, %v", b, err)
	}
}
