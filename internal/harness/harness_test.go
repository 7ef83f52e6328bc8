package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "expectations failed: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/push_during_polling.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Transcript, second.Transcript)
	assert.Len(t, first.Traces, 19)
}

func TestRun_FailedExpectation(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/immediate_confirmation.yaml")
	require.NoError(t, err)

	s.Expect.Status = "timeout"
	wrong := 7
	s.Expect.Probes = &wrong

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.ElementsMatch(t, []string{
		"status: expected timeout, got success",
		"probes: expected 7, got 1",
	}, result.Errors)
}

func TestRun_NilScenario(t *testing.T) {
	_, err := Run(nil)
	assert.Error(t, err)
}

func TestRun_RetryWithoutTimeout(t *testing.T) {
	s := &Scenario{
		Name:        "retry_while_idle",
		Description: "retry with nothing pending",
		Identifier:  "si_x",
		Steps:       []Step{{Retry: true}},
		Expect:      Expect{Status: "idle"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "%v", result.Errors)
	assert.Equal(t, []string{
		"> retry error=NO_PENDING",
		"= status=idle successes=0 timeouts=0 closed=0 alerts=0 probes=0",
	}, result.Transcript)
}

func TestRun_StartInvalidIdentifier(t *testing.T) {
	s := &Scenario{
		Name:        "blank",
		Description: "blank identifier",
		Identifier:  "si_x",
		Steps:       []Step{{Start: &StartStep{Identifier: "   "}}},
		Expect:      Expect{Status: "idle"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.Contains(t, result.Transcript[0], "error=INVALID_IDENTIFIER")
	assert.Equal(t, "= status=idle successes=0 timeouts=0 closed=0 alerts=0 probes=0", result.Transcript[1])
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nidentifier: si\nsteps: [{close: true}]\nexpect: {status: idle}\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nidentifier: si\nsteps: [{close: true}]\nexpect: {status: idle}\n",
			wantErr: "description is required",
		},
		{
			name:    "missing identifier",
			yaml:    "name: n\ndescription: d\nsteps: [{close: true}]\nexpect: {status: idle}\n",
			wantErr: "identifier is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nidentifier: si\nexpect: {status: idle}\n",
			wantErr: "steps list is required",
		},
		{
			name:    "missing status",
			yaml:    "name: n\ndescription: d\nidentifier: si\nsteps: [{close: true}]\n",
			wantErr: "expect.status is required",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: n\ndescription: d\nidentifier: si\nsteps: [{close: true, retry: true}]\nexpect: {status: idle}\n",
			wantErr: "exactly one of",
		},
		{
			name:    "negative tick",
			yaml:    "name: n\ndescription: d\nidentifier: si\nsteps: [{tick: -1}]\nexpect: {status: idle}\n",
			wantErr: "tick must be positive",
		},
		{
			name:    "bad policy",
			yaml:    "name: n\ndescription: d\nidentifier: si\npolicy: {interval: 1s, max_attempts: 0}\nsteps: [{close: true}]\nexpect: {status: idle}\n",
			wantErr: "max_attempts",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nidentifier: si\nstepz: []\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Policy(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/retry_negative_single_alert.yaml")
	require.NoError(t, err)
	require.NotNil(t, s.Policy)
	assert.Equal(t, "1s", s.Policy.Interval.String())
	assert.Equal(t, 2, s.Policy.MaxAttempts)
	assert.Len(t, s.Steps, 4)
	assert.Equal(t, 2, s.Steps[1].Tick)
}

func TestLoadDir_Sorted(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	for i := 1; i < len(scenarios); i++ {
		assert.Less(t, scenarios[i-1].Name, scenarios[i].Name)
	}
}
