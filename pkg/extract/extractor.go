// Package extract turns a raw transcript into a fully populated observation
// record. Every matcher is total: when nothing in the text matches, the
// field gets its documented default and is flagged as defaulted so the
// confirmation step can highlight the guess. Extraction never fails.
package extract

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

var (
	acreageWithDigits = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:acres?|hectares?)`)
	acreageUnit       = regexp.MustCompile(`\b(?:acres?|hectares?)\b`)
	yieldPattern      = regexp.MustCompile(`(\d+)\s*(tons?|kg|quintals?)`)
	pricePattern      = regexp.MustCompile(`(?:₹\s*)?(\d+)\s*(?:per|each|rupees|inr)`)
	dosagePattern     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(ml|l|litres?|liters?|kg|g)\b`)
)

// acreageWindow is how many words before the unit are fed to the
// spelled-out number parser ("two and a half acres").
const acreageWindow = 6

type Extractor struct {
	profile *Profile
	clock   func() time.Time
}

// NewExtractor builds an extractor over the given keyword profile.
// A nil profile selects the built-in dictionaries.
func NewExtractor(profile *Profile) *Extractor {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Extractor{profile: profile, clock: time.Now}
}

// WithClock overrides the timestamp clock for testing.
func (e *Extractor) WithClock(clock func() time.Time) *Extractor {
	e.clock = clock
	return e
}

// Extract produces a complete observation record from transcript text. The
// transcript may be a single utterance or pipe/newline-delimited answers to
// sequential prompts; matchers scan the whole text either way. The record
// timestamp is assigned here, once, and callers must not mutate it.
func (e *Extractor) Extract(text, lang string) *record.ObservationRecord {
	lower := strings.ToLower(text)

	rec := &record.ObservationRecord{
		Language:  NormalizeLanguage(lang),
		Timestamp: e.clock().UTC().Format(time.RFC3339),
	}

	rec.CropType = e.extractCrop(lower, rec)
	rec.Acreage = e.extractAcreage(lower, rec)
	rec.CurrentStage = e.extractStage(lower, rec)
	rec.ObservedIssues = e.extractIssues(lower, rec)
	rec.ChemicalsUsed = e.extractChemicals(lower, rec)
	rec.ExpectedYield = e.extractYield(lower, rec)
	rec.PriceExpectation = e.extractPrice(lower, rec)

	return rec
}

func (e *Extractor) extractCrop(text string, rec *record.ObservationRecord) string {
	for _, crop := range e.profile.Crops {
		if strings.Contains(text, crop) {
			rec.MarkSource("crop_type", record.SourceExtracted)
			return crop
		}
	}
	rec.MarkSource("crop_type", record.SourceDefaulted)
	return record.UnknownCrop
}

// extractAcreage tries digits-with-unit first, then feeds the words before
// the unit to the spelled-out number parser. No unit and no parsable
// quantity means null, which stays distinct from an explicit zero.
func (e *Extractor) extractAcreage(text string, rec *record.ObservationRecord) record.Acres {
	if m := acreageWithDigits.FindStringSubmatch(text); m != nil {
		if v, ok := ParseNumber(m[1]); ok {
			rec.MarkSource("acreage", record.SourceExtracted)
			return record.AcresOf(v)
		}
	}

	if loc := acreageUnit.FindStringIndex(text); loc != nil {
		words := strings.Fields(text[:loc[0]])
		if len(words) > acreageWindow {
			words = words[len(words)-acreageWindow:]
		}
		if v, ok := ParseNumber(strings.Join(words, " ")); ok {
			rec.MarkSource("acreage", record.SourceExtracted)
			return record.AcresOf(v)
		}
	}

	rec.MarkSource("acreage", record.SourceDefaulted)
	return record.NoAcres()
}

func (e *Extractor) extractStage(text string, rec *record.ObservationRecord) record.GrowthStage {
	for _, sp := range e.profile.Stages {
		for _, kw := range sp.Keywords {
			if strings.Contains(text, kw) {
				rec.MarkSource("current_stage", record.SourceExtracted)
				return record.GrowthStage(sp.Stage)
			}
		}
	}
	rec.MarkSource("current_stage", record.SourceDefaulted)
	return record.StageUnknown
}

// extractIssues returns matched categories deduplicated, in profile order.
// Semantically a set; the fixed order keeps the canonical form stable.
func (e *Extractor) extractIssues(text string, rec *record.ObservationRecord) []string {
	var issues []string
	for _, ip := range e.profile.Issues {
		for _, kw := range ip.Keywords {
			if strings.Contains(text, kw) {
				issues = append(issues, ip.Category)
				break
			}
		}
	}
	if len(issues) == 0 {
		rec.MarkSource("observed_issues", record.SourceDefaulted)
		return []string{record.NoIssue}
	}
	rec.MarkSource("observed_issues", record.SourceExtracted)
	return issues
}

func (e *Extractor) extractChemicals(text string, rec *record.ObservationRecord) []record.Chemical {
	chemicals := make([]record.Chemical, 0)
	for _, cp := range e.profile.Chemicals {
		for _, kw := range cp.Keywords {
			idx := strings.Index(text, kw)
			if idx < 0 {
				continue
			}
			chemicals = append(chemicals, record.Chemical{
				Name:   cp.Name,
				Dosage: dosageNear(text, idx),
			})
			break
		}
	}
	if len(chemicals) == 0 {
		rec.MarkSource("chemicals_used", record.SourceDefaulted)
	} else {
		rec.MarkSource("chemicals_used", record.SourceExtracted)
	}
	return chemicals
}

// dosageNear looks for a quantity-with-unit shortly after the chemical
// keyword ("neem oil 5l"). Unstated dosages get the documented default.
func dosageNear(text string, idx int) string {
	end := idx + 48
	if end > len(text) {
		end = len(text)
	}
	if m := dosagePattern.FindStringSubmatch(text[idx:end]); m != nil {
		return m[1] + m[2]
	}
	return record.DefaultDosage
}

func (e *Extractor) extractYield(text string, rec *record.ObservationRecord) string {
	if m := yieldPattern.FindStringSubmatch(text); m != nil {
		rec.MarkSource("expected_yield", record.SourceExtracted)
		return m[1] + " " + m[2]
	}
	rec.MarkSource("expected_yield", record.SourceDefaulted)
	return record.NotSpecified
}

func (e *Extractor) extractPrice(text string, rec *record.ObservationRecord) string {
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		rec.MarkSource("price_expectation", record.SourceExtracted)
		return m[1] + " INR"
	}
	rec.MarkSource("price_expectation", record.SourceDefaulted)
	return record.NotSpecified
}

// NormalizeLanguage canonicalizes a BCP 47 tag to its base language
// ("hi-IN" becomes "hi"). Unparseable tags fall back to English.
func NormalizeLanguage(tag string) string {
	if tag == "" {
		return "en"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	base, _ := t.Base()
	return base.String()
}
