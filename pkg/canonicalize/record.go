package canonicalize

import (
	"encoding/json"
	"strconv"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

// CanonicalKeys is the fixed set of top-level keys in the canonical form, in
// serialization (alphabetical) order. No other key ever appears.
var CanonicalKeys = []string{
	"acreage",
	"audio_ipfs_cid",
	"chemicals_used",
	"crop_type",
	"current_stage",
	"expected_yield",
	"farmer_id",
	"language",
	"observed_issues",
	"price_expectation",
	"timestamp",
}

// Record returns the canonical form of r.
//
// Normalization rules:
//   - exactly the eleven CanonicalKeys, missing strings as "", missing lists
//     as empty sequences (never omitted)
//   - each chemical reduced to exactly {dosage, name}, keys alphabetical
//   - null acreage serializes as JSON null, which is distinct from 0: a
//     farmer who reported nothing is not a farmer who reported zero acres
//   - no dependence on construction order, locale, or clock
func Record(r *record.ObservationRecord) ([]byte, error) {
	chemicals := make([]interface{}, 0, len(r.ChemicalsUsed))
	for _, c := range r.ChemicalsUsed {
		chemicals = append(chemicals, map[string]interface{}{
			"dosage": c.Dosage,
			"name":   c.Name,
		})
	}

	issues := make([]interface{}, 0, len(r.ObservedIssues))
	for _, issue := range r.ObservedIssues {
		issues = append(issues, issue)
	}

	var acreage interface{}
	if r.Acreage.Valid {
		acreage = json.Number(strconv.FormatFloat(r.Acreage.Value, 'f', -1, 64))
	}

	form := map[string]interface{}{
		"acreage":           acreage,
		"audio_ipfs_cid":    r.AudioCID,
		"chemicals_used":    chemicals,
		"crop_type":         r.CropType,
		"current_stage":     string(r.CurrentStage),
		"expected_yield":    r.ExpectedYield,
		"farmer_id":         r.FarmerID,
		"language":          r.Language,
		"observed_issues":   issues,
		"price_expectation": r.PriceExpectation,
		"timestamp":         r.Timestamp,
	}

	return marshalRecursive(form)
}

// HashRecord canonicalizes r and returns its commit hash.
func HashRecord(r *record.ObservationRecord) (string, error) {
	b, err := Record(r)
	if err != nil {
		return "", err
	}
	return Hash(b), nil
}
