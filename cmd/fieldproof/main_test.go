package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
)

func TestRun_NoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof", "bogus"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "unknown command")
}

func TestRun_Extract(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof", "extract",
		"-text", "I planted rice on three acres",
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var rec record.ObservationRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "rice", rec.CropType)
	require.True(t, rec.Acreage.Valid)
	assert.Equal(t, float64(3), rec.Acreage.Value)
}

func TestRun_Hash(t *testing.T) {
	rec := record.ObservationRecord{
		FarmerID:       "farmer_1a2b3c4d",
		Language:       "en",
		CropType:       "rice",
		Acreage:        record.AcresOf(3),
		CurrentStage:   record.StageFlowering,
		ObservedIssues: []string{"none"},
		ChemicalsUsed:  []record.Chemical{},
		Timestamp:      "2026-01-15T08:30:00Z",
	}
	data, err := json.Marshal(&rec)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof", "hash", path}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	digest := strings.TrimSpace(out.String())
	assert.Len(t, digest, 64)

	// Same record, same digest.
	out.Reset()
	code = Run([]string{"fieldproof", "hash", path}, &out, &errOut)
	require.Equal(t, 0, code)
	assert.Equal(t, digest, strings.TrimSpace(out.String()))
}

func TestRun_Commit_UnknownSessionBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("SESSION_BACKEND", "bogus")

	audioPath := filepath.Join(t.TempDir(), "obs.webm")
	require.NoError(t, os.WriteFile(audioPath, []byte("opus audio"), 0o644))

	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof", "commit",
		"-text", "I planted rice",
		"-audio", audioPath,
	}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), `unknown session backend "bogus"`)
}

func TestRun_Commit(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("ANCHOR_BACKEND", "chain")
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("OTEL_ENABLED", "")

	audioPath := filepath.Join(t.TempDir(), "obs.webm")
	require.NoError(t, os.WriteFile(audioPath, []byte("opus audio"), 0o644))

	var out, errOut bytes.Buffer
	code := Run([]string{"fieldproof", "commit",
		"-text", "I planted wheat on two and a half acres",
		"-audio", audioPath,
	}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var sess struct {
		State    string `json:"state"`
		DataHash string `json:"data_hash"`
		AudioCID string `json:"audio_cid"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &sess))
	assert.Equal(t, "COMMITTED", sess.State)
	assert.Len(t, sess.DataHash, 64)
	assert.NotEmpty(t, sess.AudioCID)
}
