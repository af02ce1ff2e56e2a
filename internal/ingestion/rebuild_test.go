package ingestion

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/rag"
	"github.com/healthlens/healthlens-go/internal/records"
)

func TestRebuildSteps_CoverEveryRecordType(t *testing.T) {
	t.Parallel()
	for _, rt := range facts.RecordTypes() {
		if _, ok := rebuildSteps[rt]; !ok {
			t.Errorf("record type %s has no rebuild step", rt)
		}
	}
	if len(rebuildSteps) != len(facts.RecordTypes()) {
		t.Errorf("rebuild steps for unknown record types: %d steps, %d types", len(rebuildSteps), len(facts.RecordTypes()))
	}
}

func seedRecords(t *testing.T, rs *records.SQLiteStore, owner string) {
	t.Helper()
	ctx := context.Background()
	b := &records.Bundle{
		Profile:       &records.Profile{BloodType: "O+", HeightCM: 180},
		Appointments:  []records.Appointment{{DoctorName: "Lee", Specialty: "Cardiology", Date: time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC), Reason: "follow-up"}},
		Medications:   []records.Medication{{Name: "Aspirin", Dosage: "100mg", Active: true}, {Name: "Ibuprofen", Active: false}},
		HealthRecords: []records.HealthRecord{{Kind: "lab_result", Title: "Lipid panel", Date: date("2026-02-01")}},
		Sleep:         []records.SleepRecord{{Date: date("2026-03-01"), TotalMinutes: 420}},
		Activity:      []records.ActivityRecord{{Date: date("2026-03-01"), Steps: 8000}},
		Vitals:        []records.VitalRecord{{RecordedAt: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC), HeartRate: 61}},
	}
	if _, err := rs.Import(ctx, owner, b); err != nil {
		t.Fatalf("import: %v", err)
	}
}

func TestRebuild_IndexesEveryRecordTypeIdempotently(t *testing.T) {
	t.Parallel()
	f := newIndexerFixture(t)
	seedRecords(t, f.records, "1")
	seedRecords(t, f.records, "2")
	rb, err := NewRebuilder(f.ix)
	if err != nil {
		t.Fatalf("NewRebuilder: %v", err)
	}
	ctx := context.Background()

	report, err := rb.Rebuild(ctx, "1")
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if report.Written != 7 || report.Failed != 0 {
		t.Errorf("want 7 facts written, got %+v", report)
	}
	for _, rt := range facts.RecordTypes() {
		if got := f.contents(t, "1", rt); len(got) != 1 {
			t.Errorf("%s: want 1 fact, got %d", rt, len(got))
		}
	}
	if meds := strings.Join(f.contents(t, "1", facts.Medication), " "); strings.Contains(meds, "Ibuprofen") {
		t.Error("inactive medication must not be rebuilt")
	}

	before, _ := f.index.Count(ctx, rag.Filter{OwnerID: "1"})
	if _, err := rb.Rebuild(ctx, "1"); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	after, _ := f.index.Count(ctx, rag.Filter{OwnerID: "1"})
	if before != after {
		t.Errorf("rebuild is not idempotent: %d facts, then %d", before, after)
	}
	if n, _ := f.index.Count(ctx, rag.Filter{OwnerID: "2"}); n != 0 {
		t.Errorf("rebuilding owner 1 wrote %d facts for owner 2", n)
	}
}

func TestRebuild_Concurrent(t *testing.T) {
	t.Parallel()
	f := newIndexerFixture(t)
	seedRecords(t, f.records, "1")
	rb, _ := NewRebuilder(f.ix)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rb.Rebuild(context.Background(), "1"); err != nil {
				t.Errorf("rebuild: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := f.index.Count(context.Background(), rag.Filter{OwnerID: "1"}); n != 7 {
		t.Errorf("want 7 facts after concurrent rebuilds, got %d", n)
	}
}

func TestRebuild_ReportsFailures(t *testing.T) {
	t.Parallel()
	rs, err := records.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	seedRecords(t, rs, "1")

	p, _ := newTestPipeline(t, &hashEmbedder{}, brokenStore{rag.NewMemoryStore()})
	ix, _ := NewIndexer(p, rs, "", quietLogger())
	rb, _ := NewRebuilder(ix)

	report, err := rb.Rebuild(context.Background(), "1")
	if err == nil {
		t.Fatal("want joined error when the index is down")
	}
	if report == nil || report.Failed == 0 || report.Written != 0 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestRebuild_RemovesFactsOfRecordsGoneFromStore(t *testing.T) {
	t.Parallel()
	f := newIndexerFixture(t)
	ctx := context.Background()

	appt, err := f.records.SaveAppointment(ctx, records.Appointment{OwnerID: "1", DoctorName: "Lee", Date: time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC), Reason: "follow-up"})
	if err != nil {
		t.Fatalf("save appointment: %v", err)
	}
	med, err := f.records.SaveMedication(ctx, records.Medication{OwnerID: "1", Name: "Warfarin", Dosage: "5mg", Active: true})
	if err != nil {
		t.Fatalf("save medication: %v", err)
	}
	f.ix.AppointmentSaved(ctx, appt)
	f.ix.MedicationSaved(ctx, med)

	// Source records change without the matching retract reaching the index.
	if err := f.records.DeleteAppointment(ctx, "1", appt.ID); err != nil {
		t.Fatalf("delete appointment: %v", err)
	}
	if err := f.records.DeactivateMedication(ctx, "1", med.ID); err != nil {
		t.Fatalf("deactivate medication: %v", err)
	}

	rb, _ := NewRebuilder(f.ix)
	if _, err := rb.Rebuild(ctx, "1"); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := f.contents(t, "1", facts.Appointment); len(got) != 0 {
		t.Errorf("deleted appointment survived rebuild: %q", got)
	}
	if got := f.contents(t, "1", facts.Medication); len(got) != 0 {
		t.Errorf("deactivated medication survived rebuild: %q", got)
	}
}

func TestRebuild_KeepsOtherOwnersFacts(t *testing.T) {
	t.Parallel()
	f := newIndexerFixture(t)
	seedRecords(t, f.records, "2")
	ctx := context.Background()
	rb, _ := NewRebuilder(f.ix)

	if _, err := rb.Rebuild(ctx, "2"); err != nil {
		t.Fatalf("rebuild owner 2: %v", err)
	}
	before, _ := f.index.Count(ctx, rag.Filter{OwnerID: "2"})
	if _, err := rb.Rebuild(ctx, "1"); err != nil {
		t.Fatalf("rebuild owner 1: %v", err)
	}
	if after, _ := f.index.Count(ctx, rag.Filter{OwnerID: "2"}); after != before || after == 0 {
		t.Errorf("owner 2 facts changed by owner 1 rebuild: %d then %d", before, after)
	}
}
