package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/healthlens/healthlens-go/internal/extract"
	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/records"
)

// ErrForeignAttachment is returned when a health record points at an upload
// that does not carry its owner's file name prefix.
var ErrForeignAttachment = errors.New("ingestion: attachment belongs to another owner")

// Attachments resolves health-record file URLs to extracted text. Uploads are
// stored flat in Dir and named "<owner id>_<original name>".
type Attachments struct {
	// Dir is the upload directory. Empty disables attachment extraction.
	Dir string
}

// Text returns the extracted text of the upload fileURL points at. A missing
// file or an attachment type without text yields "" and a nil error.
func (a Attachments) Text(ownerID, fileURL string) (string, error) {
	if a.Dir == "" || fileURL == "" {
		return "", nil
	}
	name := path.Base(fileURL)
	if name == "." || name == "/" || !strings.HasPrefix(name, ownerID+"_") {
		return "", fmt.Errorf("%w: %q", ErrForeignAttachment, name)
	}
	text, err := extract.File(filepath.Join(a.Dir, name))
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, os.ErrNotExist), errors.Is(err, extract.ErrUnsupported):
		return "", nil
	default:
		return "", err
	}
}

// Indexer translates domain record changes into index writes. Every hook
// returns an Outcome and never panics or blocks on index failure; callers
// that persisted the record may ignore the result.
type Indexer struct {
	// pipeline writes and retracts facts.
	pipeline *Pipeline

	// source is read when a series changes, to recompute its summary.
	source records.Source

	// attachments extracts health-record upload text.
	attachments Attachments

	log *slog.Logger
}

// NewIndexer constructs an Indexer. uploadDir may be empty.
func NewIndexer(p *Pipeline, source records.Source, uploadDir string, log *slog.Logger) (*Indexer, error) {
	if p == nil {
		return nil, fmt.Errorf("ingestion: pipeline must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("ingestion: record source must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{pipeline: p, source: source, attachments: Attachments{Dir: uploadDir}, log: log}, nil
}

// Pipeline returns the underlying pipeline.
func (ix *Indexer) Pipeline() *Pipeline { return ix.pipeline }

func (ix *Indexer) replace(ctx context.Context, ownerID string, r rendered) Outcome {
	return ix.pipeline.Replace(ctx, ownerID, r.recordType, r.content, r.meta)
}

// ProfileSaved indexes the owner's personal information.
func (ix *Indexer) ProfileSaved(ctx context.Context, p records.Profile) Outcome {
	return ix.replace(ctx, p.OwnerID, renderProfile(p))
}

// AppointmentSaved indexes a created or edited appointment.
func (ix *Indexer) AppointmentSaved(ctx context.Context, a records.Appointment) Outcome {
	return ix.replace(ctx, a.OwnerID, renderAppointment(a))
}

// AppointmentDeleted retracts the facts of a deleted appointment.
func (ix *Indexer) AppointmentDeleted(ctx context.Context, ownerID string, id int64) Outcome {
	return ix.pipeline.Retract(ctx, ownerID, facts.Appointment, facts.KeyAppointmentID, idStr(id))
}

// MedicationSaved indexes an active medication and retracts an inactive one.
func (ix *Indexer) MedicationSaved(ctx context.Context, m records.Medication) Outcome {
	if !m.Active {
		return ix.MedicationDeactivated(ctx, m.OwnerID, m.ID)
	}
	return ix.replace(ctx, m.OwnerID, renderMedication(m))
}

// MedicationDeactivated retracts the facts of a stopped medication.
func (ix *Indexer) MedicationDeactivated(ctx context.Context, ownerID string, id int64) Outcome {
	return ix.pipeline.Retract(ctx, ownerID, facts.Medication, facts.KeyMedicationID, idStr(id))
}

// HealthRecordSaved indexes a health record together with the text of its
// attachment. An unreadable attachment is logged and the record is indexed
// without it.
func (ix *Indexer) HealthRecordSaved(ctx context.Context, r records.HealthRecord) Outcome {
	return ix.replace(ctx, r.OwnerID, renderHealthRecord(r, ix.attachmentText(r)))
}

func (ix *Indexer) attachmentText(r records.HealthRecord) string {
	text, err := ix.attachments.Text(r.OwnerID, r.FileURL)
	if err != nil {
		ix.log.Warn("ingestion: attachment skipped",
			slog.String("owner_id", r.OwnerID),
			slog.Int64("record_id", r.ID),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if text != "" {
		ix.log.Info("ingestion: attachment extracted",
			slog.String("owner_id", r.OwnerID),
			slog.Int64("record_id", r.ID),
			slog.Int("chars", len(text)),
		)
	}
	return text
}

// HealthRecordDeleted retracts the facts of a deleted health record.
func (ix *Indexer) HealthRecordDeleted(ctx context.Context, ownerID string, id int64) Outcome {
	return ix.pipeline.Retract(ctx, ownerID, facts.HealthRecord, facts.KeyRecordID, idStr(id))
}

// SleepUpdated recomputes the owner's sleep summary from the record store.
func (ix *Indexer) SleepUpdated(ctx context.Context, ownerID string) Outcome {
	recs, err := ix.source.RecentSleep(ctx, ownerID, SummaryWindow)
	return ix.summary(ctx, ownerID, facts.SleepSummary, err, func() (rendered, bool) { return renderSleep(recs) })
}

// ActivityUpdated recomputes the owner's activity summary from the record store.
func (ix *Indexer) ActivityUpdated(ctx context.Context, ownerID string) Outcome {
	recs, err := ix.source.RecentActivity(ctx, ownerID, SummaryWindow)
	return ix.summary(ctx, ownerID, facts.ActivitySummary, err, func() (rendered, bool) { return renderActivity(recs) })
}

// VitalsUpdated recomputes the owner's vitals summary from the record store.
func (ix *Indexer) VitalsUpdated(ctx context.Context, ownerID string) Outcome {
	recs, err := ix.source.RecentVitals(ctx, ownerID, SummaryWindow)
	return ix.summary(ctx, ownerID, facts.VitalsSummary, err, func() (rendered, bool) { return renderVitals(recs) })
}

// summary replaces the owner's single summary fact of type t. An empty series
// retracts the summary.
func (ix *Indexer) summary(ctx context.Context, ownerID string, t facts.RecordType, readErr error, render func() (rendered, bool)) Outcome {
	if readErr != nil {
		return ix.pipeline.failSource(ownerID, t, readErr)
	}
	r, ok := render()
	if !ok {
		return ix.pipeline.Retract(ctx, ownerID, t, facts.KeyWindow, facts.WindowLast30)
	}
	return ix.replace(ctx, ownerID, r)
}
