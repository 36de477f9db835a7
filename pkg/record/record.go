// Package record defines the observation record committed by the pipeline:
// one farmer's report about one field, captured in a single session.
//
// Records are immutable once hashed. A correction is a new record with a new
// timestamp, never an in-place edit.
package record

import (
	"errors"
	"strconv"
	"time"
)

var ErrInvalidTimestamp = errors.New("timestamp is not RFC 3339")

// GrowthStage enumerates the crop growth stages the extractor recognizes.
type GrowthStage string

const (
	StageSeedling  GrowthStage = "seedling"
	StageGrowth    GrowthStage = "growth"
	StageFlowering GrowthStage = "flowering"
	StageFruiting  GrowthStage = "fruiting"
	StageHarvest   GrowthStage = "harvest"
	StageUnknown   GrowthStage = "unknown"
)

// FieldSource records how a field obtained its value, so a confirmation UI
// can highlight guessed defaults before the farmer consents to commit.
type FieldSource string

const (
	// SourceExtracted means a matcher found the value in the transcript.
	SourceExtracted FieldSource = "extracted"
	// SourceDefaulted means no matcher fired and the documented default was used.
	SourceDefaulted FieldSource = "defaulted"
	// SourceConfirmed means the farmer explicitly confirmed or corrected the value.
	SourceConfirmed FieldSource = "confirmed"
)

// Chemical is one treatment applied to the field. Dosage is free text
// ("5L", "2kg", or "standard" when unstated).
type Chemical struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage"`
}

// Acres is an explicitly nullable acreage value. A farmer who reported
// nothing is distinct from a farmer who reported zero acres, and the
// canonical form preserves that distinction as JSON null.
type Acres struct {
	Value float64
	Valid bool
}

// AcresOf returns a non-null acreage.
func AcresOf(v float64) Acres { return Acres{Value: v, Valid: true} }

// NoAcres returns the null acreage.
func NoAcres() Acres { return Acres{} }

// MarshalJSON emits the shortest exact decimal form ("5", "2.5"), or null.
func (a Acres) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(a.Value, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a JSON number or null.
func (a *Acres) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Acres{}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*a = Acres{Value: v, Valid: true}
	return nil
}

// String renders the acreage for logs and confirmation prompts.
func (a Acres) String() string {
	if !a.Valid {
		return "unspecified"
	}
	return strconv.FormatFloat(a.Value, 'f', -1, 64)
}

// ObservationRecord is the semantic unit being committed: a single field
// observation extracted from one transcript.
//
// Timestamp is assigned once at extraction time (RFC 3339, UTC) and never
// mutated. AudioCID stays empty until the evidentiary audio has been
// uploaded to the blob store; the committed hash covers the final value.
type ObservationRecord struct {
	FarmerID         string      `json:"farmer_id"`
	Language         string      `json:"language"`
	CropType         string      `json:"crop_type"`
	Acreage          Acres       `json:"acreage"`
	CurrentStage     GrowthStage `json:"current_stage"`
	ObservedIssues   []string    `json:"observed_issues"`
	ChemicalsUsed    []Chemical  `json:"chemicals_used"`
	ExpectedYield    string      `json:"expected_yield"`
	PriceExpectation string      `json:"price_expectation"`
	AudioCID         string      `json:"audio_ipfs_cid"`
	Timestamp        string      `json:"timestamp"`

	// Provenance maps canonical field names to how the value was obtained.
	// It is session bookkeeping, not part of the canonical form.
	Provenance map[string]FieldSource `json:"provenance,omitempty"`
}

// Defaults used when a matcher finds nothing. These mirror what the
// confirmation step presents for correction.
const (
	UnknownCrop   = "unknown"
	NoIssue       = "none"
	NotSpecified  = "not specified"
	DefaultDosage = "standard"
)

// Clone returns a deep copy. Slices and the provenance map are copied so
// mutating the clone never aliases the original.
func (r *ObservationRecord) Clone() *ObservationRecord {
	c := *r
	c.ObservedIssues = append([]string(nil), r.ObservedIssues...)
	c.ChemicalsUsed = append([]Chemical(nil), r.ChemicalsUsed...)
	if r.Provenance != nil {
		c.Provenance = make(map[string]FieldSource, len(r.Provenance))
		for k, v := range r.Provenance {
			c.Provenance[k] = v
		}
	}
	return &c
}

// WithAudioCID returns a copy of the record with the blob identifier
// attached. The receiver is left untouched; commits hash the copy.
func (r *ObservationRecord) WithAudioCID(cid string) *ObservationRecord {
	c := r.Clone()
	c.AudioCID = cid
	return c
}

// TimestampUnix returns the record timestamp as unix seconds, as submitted
// to the ledger collaborator.
func (r *ObservationRecord) TimestampUnix() (int64, error) {
	t, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}
	return t.Unix(), nil
}

// MarkSource records field provenance, allocating the map on first use.
func (r *ObservationRecord) MarkSource(field string, src FieldSource) {
	if r.Provenance == nil {
		r.Provenance = make(map[string]FieldSource)
	}
	r.Provenance[field] = src
}
