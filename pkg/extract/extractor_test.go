package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

func fixedClock() time.Time {
	return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
}

func testExtractor() *Extractor {
	return NewExtractor(nil).WithClock(fixedClock)
}

func TestExtract_FullTranscript(t *testing.T) {
	e := testExtractor()

	rec := e.Extract(
		"I planted rice on five acres, the crop is flowering, there are pests and some fungal rot, I applied neem oil 5l and fungicide, expecting 50 quintals, price 2000 per quintal",
		"en",
	)

	assert.Equal(t, "rice", rec.CropType)
	require.True(t, rec.Acreage.Valid)
	assert.Equal(t, 5.0, rec.Acreage.Value)
	assert.Equal(t, record.StageFlowering, rec.CurrentStage)
	assert.Equal(t, []string{"pest", "disease"}, rec.ObservedIssues)
	assert.Equal(t, []record.Chemical{
		{Name: "neem oil", Dosage: "5l"},
		{Name: "fungicide", Dosage: "standard"},
	}, rec.ChemicalsUsed)
	assert.Equal(t, "50 quintals", rec.ExpectedYield)
	assert.Equal(t, "2000 INR", rec.PriceExpectation)
	assert.Equal(t, "2025-01-15T10:30:00Z", rec.Timestamp)
	assert.Equal(t, record.SourceExtracted, rec.Provenance["crop_type"])
}

// Extraction is total: empty input yields a complete record of defaults.
func TestExtract_EmptyInput(t *testing.T) {
	rec := testExtractor().Extract("", "en")

	assert.Equal(t, record.UnknownCrop, rec.CropType)
	assert.False(t, rec.Acreage.Valid)
	assert.Equal(t, record.StageUnknown, rec.CurrentStage)
	assert.Equal(t, []string{record.NoIssue}, rec.ObservedIssues)
	assert.Empty(t, rec.ChemicalsUsed)
	assert.Equal(t, record.NotSpecified, rec.ExpectedYield)
	assert.Equal(t, record.NotSpecified, rec.PriceExpectation)
	assert.NotEmpty(t, rec.Timestamp)

	for _, field := range []string{"crop_type", "acreage", "current_stage", "observed_issues", "chemicals_used", "expected_yield", "price_expectation"} {
		assert.Equal(t, record.SourceDefaulted, rec.Provenance[field], field)
	}
}

func TestExtract_PipeDelimitedAnswers(t *testing.T) {
	rec := testExtractor().Extract("wheat | three acres | seedling | drought | urea", "en")

	assert.Equal(t, "wheat", rec.CropType)
	require.True(t, rec.Acreage.Valid)
	assert.Equal(t, 3.0, rec.Acreage.Value)
	assert.Equal(t, record.StageSeedling, rec.CurrentStage)
	assert.Equal(t, []string{"drought"}, rec.ObservedIssues)
	assert.Equal(t, []record.Chemical{{Name: "fertilizer", Dosage: "standard"}}, rec.ChemicalsUsed)
}

func TestExtract_SpelledOutAcreage(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"three acres", 3},
		{"two and a half acres", 2.5},
		{"twenty five acres of cotton", 25},
		{"a quarter acre plot", 0.25},
		{"two point five hectares", 2.5},
		{"1.5 acres", 1.5},
	}
	for _, tc := range cases {
		rec := testExtractor().Extract(tc.text, "en")
		require.True(t, rec.Acreage.Valid, tc.text)
		assert.Equal(t, tc.want, rec.Acreage.Value, tc.text)
	}
}

// Null acreage must stay distinguishable from a reported zero.
func TestExtract_NullVsZeroAcreage(t *testing.T) {
	null := testExtractor().Extract("no number here", "en")
	assert.False(t, null.Acreage.Valid)

	zero := testExtractor().Extract("zero acres this season", "en")
	require.True(t, zero.Acreage.Valid)
	assert.Equal(t, 0.0, zero.Acreage.Value)
}

func TestExtract_IssuesDeduplicated(t *testing.T) {
	rec := testExtractor().Extract("pests, more pests, insects and worms everywhere", "en")
	assert.Equal(t, []string{"pest"}, rec.ObservedIssues)
}

func TestExtract_IssueCategoryOrderFixed(t *testing.T) {
	// Keywords mentioned in reverse category order still come out in
	// profile order.
	rec := testExtractor().Extract("weeds, flooding, blight and insects", "en")
	assert.Equal(t, []string{"pest", "disease", "flooding", "weed"}, rec.ObservedIssues)
}

func TestNormalizeLanguage(t *testing.T) {
	assert.Equal(t, "en", NormalizeLanguage(""))
	assert.Equal(t, "en", NormalizeLanguage("en"))
	assert.Equal(t, "hi", NormalizeLanguage("hi-IN"))
	assert.Equal(t, "ta", NormalizeLanguage("ta"))
	assert.Equal(t, "en", NormalizeLanguage("not a tag !!"))
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		text    string
		want    float64
		matched bool
	}{
		{"three", 3, true},
		{"two and a half", 2.5, true},
		{"twenty five", 25, true},
		{"one hundred", 100, true},
		{"three thousand five hundred", 3500, true},
		{"two million", 2000000, true},
		{"five point five", 5.5, true},
		{"two point zero five", 2.05, true},
		{"half", 0.5, true},
		{"zero", 0, true},
		{"42", 42, true},
		{"2.5", 2.5, true},
		{"about 12 or so", 12, true},
		{"no number here", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseNumber(tc.text)
		assert.Equal(t, tc.matched, ok, tc.text)
		if tc.matched {
			assert.Equal(t, tc.want, got, tc.text)
		}
	}
}
