// Package facts defines the unit of indexed knowledge about one owner: the
// closed set of record types the domain model produces, the metadata keys each
// type may carry, and the content-addressed identifier that makes ingesting the
// same fact twice converge on a single stored entry.
package facts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RecordType classifies the domain record a fact was rendered from.
type RecordType string

// Record types produced by the renderers in the ingestion package.
const (
	PersonalInfo    RecordType = "personal_info"
	Appointment     RecordType = "appointment"
	Medication      RecordType = "medication"
	HealthRecord    RecordType = "health_record"
	SleepSummary    RecordType = "sleep_summary"
	ActivitySummary RecordType = "activity_summary"
	VitalsSummary   RecordType = "vitals_summary"
)

// Payload field names reserved by the index. Metadata may not use them.
const (
	FieldOwnerID    = "owner_id"
	FieldRecordType = "record_type"
	FieldContent    = "content"
)

// Metadata keys.
const (
	KeySource        = "source"
	KeyAppointmentID = "appointment_id"
	KeyMedicationID  = "medication_id"
	KeyRecordID      = "record_id"
	KeyCount         = "count"
	KeyLastDate      = "last_date"
	KeyWindow        = "summary_window"
)

// WindowLast30 is the summary_window value used by the rolling summaries.
const WindowLast30 = "last_30"

var (
	// ErrUnknownRecordType is returned when a record type is outside the closed set.
	ErrUnknownRecordType = errors.New("facts: unknown record type")

	// ErrUnknownMetadataKey is returned when metadata carries a key the record
	// type does not declare.
	ErrUnknownMetadataKey = errors.New("facts: unknown metadata key")

	// ErrInvalidFact is returned when a fact is missing a required field.
	ErrInvalidFact = errors.New("facts: invalid fact")
)

// schema declares the metadata keys each record type may carry. The first key
// in required is the key a record is retracted by when it changes.
type schema struct {
	allowed  []string
	required []string
}

var schemas = map[RecordType]schema{
	PersonalInfo:    {allowed: []string{KeySource}},
	Appointment:     {allowed: []string{KeyAppointmentID}, required: []string{KeyAppointmentID}},
	Medication:      {allowed: []string{KeyMedicationID}, required: []string{KeyMedicationID}},
	HealthRecord:    {allowed: []string{KeyRecordID}, required: []string{KeyRecordID}},
	SleepSummary:    {allowed: []string{KeyCount, KeyLastDate, KeyWindow}, required: []string{KeyWindow}},
	ActivitySummary: {allowed: []string{KeyCount, KeyLastDate, KeyWindow}, required: []string{KeyWindow}},
	VitalsSummary:   {allowed: []string{KeyCount, KeyLastDate, KeyWindow}, required: []string{KeyWindow}},
}

// RecordTypes returns every record type in a stable order.
func RecordTypes() []RecordType {
	return []RecordType{
		PersonalInfo,
		Appointment,
		Medication,
		HealthRecord,
		SleepSummary,
		ActivitySummary,
		VitalsSummary,
	}
}

// ParseRecordType converts s into a RecordType, rejecting unknown values.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.TrimSpace(s))
	if _, ok := schemas[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
	return t, nil
}

// String implements fmt.Stringer.
func (t RecordType) String() string { return string(t) }

// AllowedKeys returns the metadata keys t may carry.
func (t RecordType) AllowedKeys() []string {
	return append([]string(nil), schemas[t].allowed...)
}

// RetractKey returns the metadata key that identifies the source record of a
// fact of type t: the first required key, else the first allowed key.
func (t RecordType) RetractKey() string {
	s := schemas[t]
	if len(s.required) > 0 {
		return s.required[0]
	}
	if len(s.allowed) > 0 {
		return s.allowed[0]
	}
	return ""
}

// Metadata holds the per-type key/value pairs stored alongside a fact.
type Metadata map[string]string

// ValidateKey reports whether key is declared for record type t.
func ValidateKey(t RecordType, key string) error {
	s, ok := schemas[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
	}
	for _, k := range s.allowed {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not declared for %s", ErrUnknownMetadataKey, key, t)
}

// ValidateMetadata checks m against the schema of t: every key must be
// declared, every value non-empty, and every required key present.
func ValidateMetadata(t RecordType, m Metadata) error {
	s, ok := schemas[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
	}
	for k, v := range m {
		if err := ValidateKey(t, k); err != nil {
			return err
		}
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: metadata %q is empty", ErrInvalidFact, k)
		}
	}
	for _, k := range s.required {
		if _, ok := m[k]; !ok {
			return fmt.Errorf("%w: %s requires metadata %q", ErrInvalidFact, t, k)
		}
	}
	return nil
}

// Fact is one retrievable statement about one owner.
type Fact struct {
	// ID is derived from OwnerID, RecordType and Content; see ID.
	ID string

	// OwnerID is the account the fact describes.
	OwnerID string

	// RecordType is the kind of domain record the fact was rendered from.
	RecordType RecordType

	// Content is the rendered text embedded and shown to the generator.
	Content string

	// Metadata carries the per-type keys declared by the record type.
	Metadata Metadata
}

// idNamespace scopes the SHA-1 name-based identifiers to this index.
var idNamespace = uuid.MustParse("8d5a3c44-2f0b-4f4e-a9c1-3b7d61e0f5a2")

// ID returns the deterministic identifier for (ownerID, t, content). Equal
// inputs always yield the same id; the NUL separators keep distinct triples
// from colliding through concatenation.
func ID(ownerID string, t RecordType, content string) string {
	name := ownerID + "\x00" + string(t) + "\x00" + content
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// New validates its inputs and returns a Fact with its ID populated.
// Content is stored exactly as given; callers decide whether blank content is
// a no-op before calling New.
func New(ownerID string, t RecordType, content string, meta Metadata) (Fact, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Fact{}, fmt.Errorf("%w: owner id is required", ErrInvalidFact)
	}
	if strings.TrimSpace(content) == "" {
		return Fact{}, fmt.Errorf("%w: content is empty", ErrInvalidFact)
	}
	if err := ValidateMetadata(t, meta); err != nil {
		return Fact{}, err
	}
	cp := make(Metadata, len(meta))
	for k, v := range meta {
		cp[k] = v
	}
	return Fact{
		ID:         ID(ownerID, t, content),
		OwnerID:    ownerID,
		RecordType: t,
		Content:    content,
		Metadata:   cp,
	}, nil
}
