package ingestion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/records"
)

// SummaryWindow is the number of most recent series records folded into one
// summary fact.
const SummaryWindow = 30

// profileSource is the source recorded for profiles without one.
const profileSource = "health_profile"

// rendered is the fact form of one domain record.
type rendered struct {
	recordType facts.RecordType
	content    string
	meta       facts.Metadata
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func fmtDay(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02")
}

func fmtMinute(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format("2006-01-02 15:04")
}

func idStr(id int64) string { return strconv.FormatInt(id, 10) }

func renderProfile(p records.Profile) rendered {
	height, weight := "unknown", "unknown"
	if p.HeightCM > 0 {
		height = strconv.Itoa(p.HeightCM) + "cm"
	}
	if p.WeightKG > 0 {
		weight = strconv.Itoa(p.WeightKG) + "kg"
	}
	source := p.Source
	if source == "" {
		source = profileSource
	}
	return rendered{
		recordType: facts.PersonalInfo,
		content: fmt.Sprintf("Personal Info: DOB: %s, Sex: %s, Blood Type: %s, Height: %s, Weight: %s",
			fmtDay(p.DateOfBirth), orUnknown(p.BiologicalSex), orUnknown(p.BloodType), height, weight),
		meta: facts.Metadata{facts.KeySource: source},
	}
}

func renderAppointment(a records.Appointment) rendered {
	return rendered{
		recordType: facts.Appointment,
		content: fmt.Sprintf("Appointment: Dr. %s (%s), Date: %s, Reason: %s",
			a.DoctorName, orUnknown(a.Specialty), fmtMinute(a.Date), orUnknown(a.Reason)),
		meta: facts.Metadata{facts.KeyAppointmentID: idStr(a.ID)},
	}
}

func renderMedication(m records.Medication) rendered {
	notes := m.Notes
	if strings.TrimSpace(notes) == "" {
		notes = "none"
	}
	return rendered{
		recordType: facts.Medication,
		content: fmt.Sprintf("Medication: %s, Dosage: %s, Frequency: %s, Start Date: %s, Notes: %s",
			m.Name, orUnknown(m.Dosage), orUnknown(m.Frequency), fmtDay(m.StartDate), notes),
		meta: facts.Metadata{facts.KeyMedicationID: idStr(m.ID)},
	}
}

// renderHealthRecord appends attachment text, when there is any, under an
// "Extracted File Content:" heading.
func renderHealthRecord(r records.HealthRecord, attachment string) rendered {
	content := fmt.Sprintf("Health Record: %s (%s), Date: %s, Description: %s",
		r.Title, orUnknown(r.Kind), fmtDay(r.Date), orUnknown(r.Description))
	if attachment = strings.TrimSpace(attachment); attachment != "" {
		content += "\n\nExtracted File Content:\n" + attachment
	}
	return rendered{
		recordType: facts.HealthRecord,
		content:    content,
		meta:       facts.Metadata{facts.KeyRecordID: idStr(r.ID)},
	}
}

func summaryMeta(count int, last time.Time) facts.Metadata {
	return facts.Metadata{
		facts.KeyWindow:   facts.WindowLast30,
		facts.KeyCount:    strconv.Itoa(count),
		facts.KeyLastDate: fmtDay(last),
	}
}

// renderSleep summarises recs, newest first. ok is false when recs is empty.
func renderSleep(recs []records.SleepRecord) (rendered, bool) {
	if len(recs) == 0 {
		return rendered{}, false
	}
	total := 0
	for _, r := range recs {
		total += r.TotalMinutes
	}
	latest := recs[0]
	return rendered{
		recordType: facts.SleepSummary,
		content: fmt.Sprintf("Sleep Summary (Last %d records): Average Duration: %.1f mins. Latest: %s - %d mins.",
			SummaryWindow, float64(total)/float64(len(recs)), fmtDay(latest.Date), latest.TotalMinutes),
		meta: summaryMeta(len(recs), latest.Date),
	}, true
}

// renderActivity summarises recs, newest first. ok is false when recs is empty.
func renderActivity(recs []records.ActivityRecord) (rendered, bool) {
	if len(recs) == 0 {
		return rendered{}, false
	}
	total := 0
	for _, r := range recs {
		total += r.Steps
	}
	latest := recs[0]
	return rendered{
		recordType: facts.ActivitySummary,
		content: fmt.Sprintf("Activity Summary (Last %d records): Average Steps: %d. Latest: %s - %d steps.",
			SummaryWindow, total/len(recs), fmtDay(latest.Date), latest.Steps),
		meta: summaryMeta(len(recs), latest.Date),
	}, true
}

// renderVitals summarises recs, newest first. Unmeasured values are left out
// of the averages. ok is false when recs is empty.
func renderVitals(recs []records.VitalRecord) (rendered, bool) {
	if len(recs) == 0 {
		return rendered{}, false
	}
	var hrSum, hrN, spSum, spN int
	for _, r := range recs {
		if r.HeartRate > 0 {
			hrSum += r.HeartRate
			hrN++
		}
		if r.OxygenSaturation > 0 {
			spSum += r.OxygenSaturation
			spN++
		}
	}
	avg := func(sum, n int, unit string) string {
		if n == 0 {
			return "not measured"
		}
		return fmt.Sprintf("%.0f%s", float64(sum)/float64(n), unit)
	}
	latest := recs[0]
	reading := func(v int, unit string) string {
		if v == 0 {
			return "not measured"
		}
		return strconv.Itoa(v) + unit
	}
	return rendered{
		recordType: facts.VitalsSummary,
		content: fmt.Sprintf("Vitals Summary (Last %d records): Average Heart Rate: %s, Average SpO2: %s. Latest: %s - Heart Rate %s, SpO2 %s.",
			SummaryWindow, avg(hrSum, hrN, " bpm"), avg(spSum, spN, "%"),
			fmtMinute(latest.RecordedAt), reading(latest.HeartRate, " bpm"), reading(latest.OxygenSaturation, "%")),
		meta: summaryMeta(len(recs), latest.RecordedAt),
	}, true
}
