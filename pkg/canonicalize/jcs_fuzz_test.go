package canonicalize

import (
	"encoding/json"
	"testing"
)

func FuzzJCS(f *testing.F) {
	f.Add([]byte(`{"crop_type":"rice","acreage":5}`))
	f.Add([]byte(`{"acreage":null,"observed_issues":[]}`))
	f.Add([]byte(`{"chemicals_used":[{"name":"neem oil","dosage":"5L"}]}`))
	f.Add([]byte(`{"note":"<spray> & wait"}`))
	f.Add([]byte(`{"z":{"y":"foo","x":"bar"},"a":1}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"":"empty_key","a":""}`))
	f.Add([]byte(`{"unicode":"धान ధాన్యం"}`))
	f.Add([]byte(`{"escape":"line1\nline2\ttab"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Skip("invalid JSON input")
			return
		}

		b1, err := JCS(v)
		if err != nil {
			return
		}

		b2, err := JCS(v)
		if err != nil {
			t.Fatal("JCS errored on second call but not first")
		}
		if string(b1) != string(b2) {
			t.Errorf("JCS non-deterministic:\n  first:  %s\n  second: %s", b1, b2)
		}

		// Output must round-trip as JSON
		var check interface{}
		if err := json.Unmarshal(b1, &check); err != nil {
			t.Errorf("JCS output is not valid JSON: %s", string(b1))
		}

		if Hash(b1) != Hash(b2) {
			t.Error("hash of identical canonical bytes differed")
		}
	})
}
