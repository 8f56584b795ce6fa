package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/internal/platform/config"
)

const rollFile = "testdata/roll.yaml"

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *responseError  `json:"error"`
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Ledger.BoltPath = filepath.Join(t.TempDir(), "ledger.db")
	cmd := NewRootCommand(cfg)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decode[T any](t *testing.T, raw string) (jsonResponse, T) {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &resp), raw)
	var data T
	if len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return resp, data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(config.FromEnv())
	assert.Equal(t, "rollguard", cmd.Use)

	for _, name := range []string{"score", "detect", "clusters", "ledger"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	for _, name := range []string{"append", "vote", "verify", "show"} {
		sub, _, err := cmd.Find([]string{"ledger", name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "clusters", "--roll", rollFile, "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScoreCommand(t *testing.T) {
	out, err := execute(t, "score", "V001", "V002", "--roll", rollFile, "--format", "json")
	require.NoError(t, err)

	resp, view := decode[ScoreView](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "V001", view.RecordA)
	assert.InDelta(t, 1.0, view.Combined, 1e-9)
	assert.Equal(t, "very_high", view.Tier)
	assert.Contains(t, view.Flags, "aadhaar_exact_match")
	assert.Equal(t, "rule_based", view.Profile)

	d := view.Diagnostics
	require.NotNil(t, d.Levenshtein)
	assert.InDelta(t, 1.0, *d.Levenshtein, 1e-9, "names agree once normalized")
	assert.Equal(t, 0, *d.EditDistance)
	assert.Equal(t, 1.0, d.AddressConfidenceA)
	require.NotNil(t, d.FaceL2Distance)
	assert.InDelta(t, 0, *d.FaceL2Distance, 1e-9)
	assert.True(t, d.SameFaceTemplate, "V002 enrolled a scaled copy of V001's embedding")
}

func TestScoreCommand_AlgorithmSubsetAndText(t *testing.T) {
	out, err := execute(t, "score", "V001", "V004", "--roll", rollFile, "--algorithms", "dob")
	require.NoError(t, err)
	assert.Contains(t, out, "V001 vs V004: 0.0000")
	assert.Contains(t, out, "signal    dob")
	assert.NotContains(t, out, "fuzzy_name")
	assert.Contains(t, out, "detail    levenshtein")
	assert.Contains(t, out, "detail    address      1.00 / 1.00")
	assert.NotContains(t, out, "face_l2", "V004 has no face")
}

func TestScoreCommand_FaceDiagnostics(t *testing.T) {
	out, err := execute(t, "score", "V001", "V003", "--roll", rollFile)
	require.NoError(t, err)
	assert.Contains(t, out, "detail    face_l2")
	assert.NotContains(t, out, "same face template")
}

func TestScoreCommand_Errors(t *testing.T) {
	cases := map[string][]string{
		"unknown record":    {"score", "V001", "V999", "--roll", rollFile},
		"unknown algorithm": {"score", "V001", "V002", "--roll", rollFile, "--algorithms", "palmistry"},
		"unknown profile":   {"score", "V001", "V002", "--roll", rollFile, "--profile", "astrology"},
		"missing roll":      {"score", "V001", "V002"},
		"unreadable roll":   {"score", "V001", "V002", "--roll", "testdata/absent.yaml"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestDetectCommand(t *testing.T) {
	out, err := execute(t, "detect", "--roll", rollFile, "--format", "json")
	require.NoError(t, err)

	_, view := decode[DetectView](t, out)
	assert.Equal(t, 4, view.Records, "inactive records are not part of the roll")
	assert.EqualValues(t, 6, view.Comparisons)
	assert.Equal(t, "all", view.Scope)
	require.Len(t, view.Flags, 1)
	assert.Equal(t, "V001", view.Flags[0].RecordA)
	assert.Equal(t, "V002", view.Flags[0].RecordB)
	assert.NotEmpty(t, view.RunID)
}

func TestDetectCommand_ScopeAndDryRun(t *testing.T) {
	out, err := execute(t, "detect", "--roll", rollFile, "--scope", "state:goa", "--dry-run", "--format", "json")
	require.NoError(t, err)

	_, view := decode[DetectView](t, out)
	assert.True(t, view.DryRun)
	assert.Equal(t, 1, view.Records)
	assert.EqualValues(t, 0, view.Comparisons)
	assert.Empty(t, view.Flags)
}

func TestDetectCommand_Text(t *testing.T) {
	out, err := execute(t, "detect", "--roll", rollFile, "--blocker", "phonetic")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "V001 ~ V002")
}

func TestDetectCommand_FaceBlocker(t *testing.T) {
	out, err := execute(t, "detect", "--roll", rollFile, "--blocker", "face", "--format", "json")
	require.NoError(t, err)

	_, view := decode[DetectView](t, out)
	assert.EqualValues(t, 1, view.Comparisons, "V001 and V002 share a face; V004 has none")
	require.Len(t, view.Flags, 1)
	assert.Equal(t, "V001", view.Flags[0].RecordA)
}

func TestDetectCommand_Errors(t *testing.T) {
	cases := map[string][]string{
		"threshold out of range": {"detect", "--roll", rollFile, "--threshold", "1.5"},
		"bad scope":              {"detect", "--roll", rollFile, "--scope", "planet:earth"},
		"bad blocker":            {"detect", "--roll", rollFile, "--blocker", "random"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestClustersCommand(t *testing.T) {
	out, err := execute(t, "clusters", "--roll", rollFile, "--low", "2", "--medium", "3", "--high", "4", "--format", "json")
	require.NoError(t, err)

	_, view := decode[ClustersView](t, out)
	assert.Equal(t, 4, view.Records)
	require.Len(t, view.Clusters, 1)
	c := view.Clusters[0]
	assert.Equal(t, 3, c.VoterCount)
	assert.Equal(t, "high", c.RiskLevel, "medium by count, escalated by the shared birth date")
	assert.Contains(t, c.Reasons, "dob_clustering")
	assert.Equal(t, []string{"Rajesh Kumar", "Anil Joshi"}, c.ExampleNames)
}

func TestClustersCommand_DefaultThresholdsFindNothing(t *testing.T) {
	out, err := execute(t, "clusters", "--roll", rollFile)
	require.NoError(t, err)
	assert.Contains(t, out, "4 records, 0 clusters")
}

func TestClustersCommand_InvalidThresholds(t *testing.T) {
	_, err := execute(t, "clusters", "--roll", rollFile, "--low", "5", "--medium", "3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLedgerCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	out, err := execute(t, "ledger", "append", "audit", `{"b": 1, "a": "x"}`, "--path", path, "--format", "json")
	require.NoError(t, err)
	_, block := decode[BlockView](t, out)
	assert.Equal(t, int64(0), block.Sequence)
	assert.Equal(t, "0", block.PreviousHash)
	assert.JSONEq(t, `{"a":"x","b":1}`, string(block.Payload))
	assert.Equal(t, `{"a":"x","b":1}`, string(block.Payload), "payload is stored canonically")

	out, err = execute(t, "ledger", "append", "audit", `{"c": 2.50}`, "--path", path, "--format", "json")
	require.NoError(t, err)
	_, second := decode[BlockView](t, out)
	assert.Equal(t, int64(1), second.Sequence)
	assert.Equal(t, block.CurrentHash, second.PreviousHash)

	out, err = execute(t, "ledger", "vote", "V001", "E2026", "C7", "--path", path, "--format", "json")
	require.NoError(t, err)
	_, vote := decode[BlockView](t, out)
	assert.Equal(t, "votes", vote.Chain)
	assert.NotContains(t, string(vote.Payload), "V001")
	assert.Contains(t, string(vote.Payload), "voter_hash")

	out, err = execute(t, "ledger", "verify", "audit", "--path", path, "--format", "json")
	require.NoError(t, err)
	_, verification := decode[VerificationView](t, out)
	assert.True(t, verification.Valid)
	assert.EqualValues(t, 2, verification.Blocks)
	assert.Nil(t, verification.FirstInvalidIndex)

	out, err = execute(t, "ledger", "show", "audit", "--seq", "1", "--path", path, "--format", "json")
	require.NoError(t, err)
	_, shown := decode[BlockView](t, out)
	assert.Equal(t, second.CurrentHash, shown.CurrentHash)

	out, err = execute(t, "ledger", "show", "audit", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "audit: 2 blocks, page 1")

	out, err = execute(t, "ledger", "verify", "empty", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "empty: valid, 0 blocks")
}

func TestLedgerCommands_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	cases := map[string][]string{
		"invalid json":  {"ledger", "append", "audit", `{"a":`, "--path", path},
		"two values":    {"ledger", "append", "audit", `1 2`, "--path", path},
		"bad chain":     {"ledger", "append", "Bad Chain", `{}`, "--path", path},
		"missing block": {"ledger", "show", "audit", "--seq", "4", "--path", path},
		"bad sequence":  {"ledger", "show", "audit", "--seq", "four", "--path", path},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "broken")))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
