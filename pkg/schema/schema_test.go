package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/canonicalize"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

func validRecord() *record.ObservationRecord {
	return &record.ObservationRecord{
		FarmerID:         "farmer_abc123",
		Language:         "en",
		CropType:         "rice",
		Acreage:          record.AcresOf(5),
		CurrentStage:     record.StageFlowering,
		ObservedIssues:   []string{"pest"},
		ChemicalsUsed:    []record.Chemical{{Name: "neem oil", Dosage: "5L"}},
		ExpectedYield:    "50 quintals",
		PriceExpectation: "2000 INR",
		AudioCID:         "QmTestCID123",
		Timestamp:        "2025-01-15T10:30:00Z",
	}
}

func TestValidateCanonical_AcceptsCanonicalRecord(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	b, err := canonicalize.Record(validRecord())
	require.NoError(t, err)

	assert.NoError(t, v.ValidateCanonical(b))
}

func TestValidateCanonical_AcceptsNullAcreage(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	r := validRecord()
	r.Acreage = record.NoAcres()
	b, err := canonicalize.Record(r)
	require.NoError(t, err)

	assert.NoError(t, v.ValidateCanonical(b))
}

func TestValidateCanonical_RejectsExtraKey(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bad := []byte(`{"acreage":5,"audio_ipfs_cid":"","chemicals_used":[],` +
		`"crop_type":"rice","current_stage":"flowering","expected_yield":"",` +
		`"farmer_id":"f","language":"en","observed_issues":[],` +
		`"price_expectation":"","timestamp":"2025-01-15T10:30:00Z","extra":1}`)

	assert.Error(t, v.ValidateCanonical(bad))
}

func TestValidateCanonical_RejectsMissingKey(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bad := []byte(`{"acreage":5}`)
	assert.Error(t, v.ValidateCanonical(bad))
}

func TestValidateCanonical_RejectsStringAcreage(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	bad := []byte(`{"acreage":"five","audio_ipfs_cid":"","chemicals_used":[],` +
		`"crop_type":"rice","current_stage":"flowering","expected_yield":"",` +
		`"farmer_id":"f","language":"en","observed_issues":[],` +
		`"price_expectation":"","timestamp":"2025-01-15T10:30:00Z"}`)

	assert.Error(t, v.ValidateCanonical(bad))
}

func TestValidateCanonical_RejectsMalformedTimestamp(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	r := validRecord()
	r.Timestamp = "yesterday morning"
	b, err := canonicalize.Record(r)
	require.NoError(t, err)

	assert.Error(t, v.ValidateCanonical(b))
}

func TestValidateCanonical_RejectsGarbage(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.Error(t, v.ValidateCanonical([]byte("not json")))
}
