package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/healthlens/healthlens-go/internal/facts"
)

// Report summarises one Rebuild.
type Report struct {
	// OwnerID is the rebuilt owner.
	OwnerID string

	// Written counts facts upserted.
	Written int

	// Skipped counts records that rendered to no fact.
	Skipped int

	// Failed counts facts that could not be written or retracted.
	Failed int

	// Duration is the wall-clock time of the rebuild.
	Duration time.Duration
}

// rebuildStep re-derives every fact of one record type for an owner. Steps
// over per-record types clear the type first so facts of records deleted
// while the index was unreachable do not survive the rebuild.
type rebuildStep func(ctx context.Context, ix *Indexer, ownerID string) []Outcome

// rebuildSteps must have an entry for every facts.RecordType; a missing one
// would silently leave that record type out of every rebuild.
var rebuildSteps = map[facts.RecordType]rebuildStep{
	facts.PersonalInfo: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		p, err := ix.source.Profile(ctx, ownerID)
		if err != nil {
			return []Outcome{ix.pipeline.failSource(ownerID, facts.PersonalInfo, err)}
		}
		if p == nil {
			return []Outcome{ix.pipeline.RetractType(ctx, ownerID, facts.PersonalInfo)}
		}
		return []Outcome{ix.ProfileSaved(ctx, *p)}
	},
	facts.Appointment: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		appts, err := ix.source.Appointments(ctx, ownerID)
		if err != nil {
			return []Outcome{ix.pipeline.failSource(ownerID, facts.Appointment, err)}
		}
		if o := ix.pipeline.RetractType(ctx, ownerID, facts.Appointment); !o.OK() {
			return []Outcome{o}
		}
		out := make([]Outcome, 0, len(appts))
		for _, a := range appts {
			out = append(out, ix.AppointmentSaved(ctx, a))
		}
		return out
	},
	facts.Medication: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		meds, err := ix.source.ActiveMedications(ctx, ownerID)
		if err != nil {
			return []Outcome{ix.pipeline.failSource(ownerID, facts.Medication, err)}
		}
		if o := ix.pipeline.RetractType(ctx, ownerID, facts.Medication); !o.OK() {
			return []Outcome{o}
		}
		out := make([]Outcome, 0, len(meds))
		for _, m := range meds {
			out = append(out, ix.MedicationSaved(ctx, m))
		}
		return out
	},
	facts.HealthRecord: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		recs, err := ix.source.HealthRecords(ctx, ownerID)
		if err != nil {
			return []Outcome{ix.pipeline.failSource(ownerID, facts.HealthRecord, err)}
		}
		if o := ix.pipeline.RetractType(ctx, ownerID, facts.HealthRecord); !o.OK() {
			return []Outcome{o}
		}
		out := make([]Outcome, 0, len(recs))
		for _, r := range recs {
			out = append(out, ix.HealthRecordSaved(ctx, r))
		}
		return out
	},
	facts.SleepSummary: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		return []Outcome{ix.SleepUpdated(ctx, ownerID)}
	},
	facts.ActivitySummary: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		return []Outcome{ix.ActivityUpdated(ctx, ownerID)}
	},
	facts.VitalsSummary: func(ctx context.Context, ix *Indexer, ownerID string) []Outcome {
		return []Outcome{ix.VitalsUpdated(ctx, ownerID)}
	},
}

// Rebuilder re-derives all facts of one owner from the record store.
// Concurrent rebuilds of the same owner share a single run; rebuilds of
// different owners proceed independently.
type Rebuilder struct {
	indexer *Indexer
	group   singleflight.Group
	log     *slog.Logger
}

// NewRebuilder constructs a Rebuilder over ix.
func NewRebuilder(ix *Indexer) (*Rebuilder, error) {
	if ix == nil {
		return nil, fmt.Errorf("ingestion: indexer must not be nil")
	}
	return &Rebuilder{indexer: ix, log: ix.log}, nil
}

// Rebuild re-ingests every record type for ownerID. Facts are content
// addressed, so a rebuild over unchanged records rewrites the same ids. The
// returned error joins every failed outcome; the Report is always non-nil.
func (rb *Rebuilder) Rebuild(ctx context.Context, ownerID string) (*Report, error) {
	if ownerID == "" {
		return &Report{}, fmt.Errorf("ingestion: rebuild: owner id is required")
	}
	type result struct {
		report *Report
		err    error
	}
	v, _, shared := rb.group.Do(ownerID, func() (any, error) {
		r, err := rb.rebuild(ctx, ownerID)
		return result{r, err}, nil
	})
	if shared {
		rb.log.Debug("ingestion: joined in-flight rebuild", slog.String("owner_id", ownerID))
	}
	res := v.(result)
	return res.report, res.err
}

func (rb *Rebuilder) rebuild(ctx context.Context, ownerID string) (*Report, error) {
	start := time.Now()
	report := &Report{OwnerID: ownerID}
	var errs []error

	for _, t := range facts.RecordTypes() {
		step, ok := rebuildSteps[t]
		if !ok {
			errs = append(errs, fmt.Errorf("ingestion: no rebuild step for %s", t))
			continue
		}
		for _, o := range step(ctx, rb.indexer, ownerID) {
			switch {
			case o.Err != nil:
				report.Failed++
				errs = append(errs, o.Err)
			case o.Skipped:
				report.Skipped++
			case o.FactID != "":
				report.Written++
			}
		}
	}
	report.Duration = time.Since(start)

	rb.log.Info("ingestion: rebuild complete",
		slog.String("owner_id", ownerID),
		slog.Int("written", report.Written),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	)
	return report, errors.Join(errs...)
}
