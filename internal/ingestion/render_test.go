package ingestion

import (
	"strings"
	"testing"
	"time"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/records"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRender_Records(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		got      rendered
		want     string
		wantType facts.RecordType
		wantMeta facts.Metadata
	}{
		{
			name:     "profile",
			got:      renderProfile(records.Profile{DateOfBirth: date("1990-04-12"), BiologicalSex: "Female", BloodType: "O+", HeightCM: 168, WeightKG: 61}),
			want:     "Personal Info: DOB: 1990-04-12, Sex: Female, Blood Type: O+, Height: 168cm, Weight: 61kg",
			wantType: facts.PersonalInfo,
			wantMeta: facts.Metadata{facts.KeySource: "health_profile"},
		},
		{
			name:     "profile with gaps",
			got:      renderProfile(records.Profile{BloodType: "A-", Source: "apple_health_export"}),
			want:     "Personal Info: DOB: unknown, Sex: unknown, Blood Type: A-, Height: unknown, Weight: unknown",
			wantType: facts.PersonalInfo,
			wantMeta: facts.Metadata{facts.KeySource: "apple_health_export"},
		},
		{
			name:     "appointment",
			got:      renderAppointment(records.Appointment{ID: 42, DoctorName: "Lee", Specialty: "Cardiology", Date: time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC), Reason: "follow-up"}),
			want:     "Appointment: Dr. Lee (Cardiology), Date: 2026-05-02 09:30, Reason: follow-up",
			wantType: facts.Appointment,
			wantMeta: facts.Metadata{facts.KeyAppointmentID: "42"},
		},
		{
			name:     "medication",
			got:      renderMedication(records.Medication{ID: 3, Name: "Aspirin", Dosage: "100mg", Frequency: "once daily", StartDate: date("2026-01-10")}),
			want:     "Medication: Aspirin, Dosage: 100mg, Frequency: once daily, Start Date: 2026-01-10, Notes: none",
			wantType: facts.Medication,
			wantMeta: facts.Metadata{facts.KeyMedicationID: "3"},
		},
		{
			name:     "health record with attachment",
			got:      renderHealthRecord(records.HealthRecord{ID: 9, Kind: "lab_result", Title: "Lipid panel", Description: "fasting", Date: date("2026-02-01")}, "  LDL 96 mg/dL\n"),
			want:     "Health Record: Lipid panel (lab_result), Date: 2026-02-01, Description: fasting\n\nExtracted File Content:\nLDL 96 mg/dL",
			wantType: facts.HealthRecord,
			wantMeta: facts.Metadata{facts.KeyRecordID: "9"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if tc.got.content != tc.want {
				t.Errorf("content:\n got %q\nwant %q", tc.got.content, tc.want)
			}
			if tc.got.recordType != tc.wantType {
				t.Errorf("record type = %s, want %s", tc.got.recordType, tc.wantType)
			}
			for k, v := range tc.wantMeta {
				if tc.got.meta[k] != v {
					t.Errorf("meta[%s] = %q, want %q", k, tc.got.meta[k], v)
				}
			}
			if err := facts.ValidateMetadata(tc.got.recordType, tc.got.meta); err != nil {
				t.Errorf("rendered metadata fails schema: %v", err)
			}
		})
	}
}

func TestRender_Summaries(t *testing.T) {
	t.Parallel()

	sleep, ok := renderSleep([]records.SleepRecord{
		{Date: date("2026-03-03"), TotalMinutes: 420},
		{Date: date("2026-03-02"), TotalMinutes: 381},
	})
	if !ok {
		t.Fatal("want sleep summary")
	}
	if want := "Sleep Summary (Last 30 records): Average Duration: 400.5 mins. Latest: 2026-03-03 - 420 mins."; sleep.content != want {
		t.Errorf("sleep:\n got %q\nwant %q", sleep.content, want)
	}
	if sleep.meta[facts.KeyCount] != "2" || sleep.meta[facts.KeyLastDate] != "2026-03-03" || sleep.meta[facts.KeyWindow] != facts.WindowLast30 {
		t.Errorf("unexpected sleep meta %v", sleep.meta)
	}

	act, _ := renderActivity([]records.ActivityRecord{{Date: date("2026-03-03"), Steps: 9000}, {Date: date("2026-03-02"), Steps: 6001}})
	if want := "Activity Summary (Last 30 records): Average Steps: 7500. Latest: 2026-03-03 - 9000 steps."; act.content != want {
		t.Errorf("activity:\n got %q\nwant %q", act.content, want)
	}

	vit, _ := renderVitals([]records.VitalRecord{
		{RecordedAt: time.Date(2026, 3, 3, 7, 15, 0, 0, time.UTC), HeartRate: 64},
		{RecordedAt: time.Date(2026, 3, 2, 7, 15, 0, 0, time.UTC), HeartRate: 60, OxygenSaturation: 97},
	})
	for _, want := range []string{"Average Heart Rate: 62 bpm", "Average SpO2: 97%", "Latest: 2026-03-03 07:15 - Heart Rate 64 bpm, SpO2 not measured."} {
		if !strings.Contains(vit.content, want) {
			t.Errorf("vitals %q missing %q", vit.content, want)
		}
	}

	if _, ok := renderSleep(nil); ok {
		t.Error("empty series must not render")
	}
}
