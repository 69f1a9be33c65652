package governance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dyluth/docket/internal/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "governance.yml")

	content := `version: "1.0"
capabilities:
  TaskPlacementProposer: [task_instance, target_slot_id]
  CapacityValidator:
    can_claim: [can_fit, remaining_capacity]
approval:
  required_fields:
    place: [can_fit]
controller:
  call_timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := Load(path)
	require.NoError(t, err)

	assert.True(t, config.Allows("TaskPlacementProposer", claim.TypeTargetSlotID))
	assert.False(t, config.Allows("TaskPlacementProposer", claim.TypeCanFit))
	assert.True(t, config.Allows("CapacityValidator", claim.TypeCanFit))
	assert.False(t, config.Allows("Unknown", claim.TypeCanFit))

	assert.Equal(t, []claim.Type{claim.TypeRemainingCapacity, claim.TypeCanFit}, config.Allowed("CapacityValidator"))
	assert.Equal(t, []string{"CapacityValidator", "TaskPlacementProposer"}, config.Producers())
	assert.Equal(t, []string{"can_fit"}, config.RequiredFields("place"))
	assert.Nil(t, config.RequiredFields("list"))

	assert.Equal(t, 5*time.Second, config.CallTimeout())
	assert.Equal(t, 30*time.Second, config.LockTTL(), "lock_ttl defaults when omitted")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read governance config")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			yaml:    "version: [",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "wrong version",
			yaml:    "version: \"2.0\"\ncapabilities:\n  A: [can_fit]\n",
			wantErr: "unsupported version",
		},
		{
			name:    "missing version",
			yaml:    "capabilities:\n  A: [can_fit]\n",
			wantErr: "unsupported version",
		},
		{
			name:    "no capabilities",
			yaml:    "version: \"1.0\"\n",
			wantErr: "capabilities section cannot be empty",
		},
		{
			name:    "unknown claim type",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: [CAN_FIT]\n",
			wantErr: "unknown claim type",
		},
		{
			name:    "duplicate claim type",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: [can_fit, can_fit]\n",
			wantErr: "listed twice",
		},
		{
			name:    "scalar capability",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: can_fit\n",
			wantErr: "capability must be a list",
		},
		{
			name:    "unknown required field",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: [can_fit]\napproval:\n  required_fields:\n    place: [slot]\n",
			wantErr: "unknown field",
		},
		{
			name:    "negative timeout",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: [can_fit]\ncontroller:\n  call_timeout: -1s\n",
			wantErr: "call_timeout must be >= 0",
		},
		{
			name:    "zero lock ttl",
			yaml:    "version: \"1.0\"\ncapabilities:\n  A: [can_fit]\ncontroller:\n  lock_ttl: 0s\n",
			wantErr: "lock_ttl must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_ZeroCallTimeoutDisables(t *testing.T) {
	config, err := Parse([]byte("version: \"1.0\"\ncapabilities:\n  A: [can_fit]\ncontroller:\n  call_timeout: 0s\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), config.CallTimeout())
}

func TestParse_EmptyCapabilityList(t *testing.T) {
	config, err := Parse([]byte("version: \"1.0\"\ncapabilities:\n  DisplayHandler: []\n  Other:\n"))
	require.NoError(t, err)
	assert.Empty(t, config.Allowed("DisplayHandler"))
	assert.Empty(t, config.Allowed("Other"))
	assert.Contains(t, config.Producers(), "Other")
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.True(t, config.Allows("TaskPlacementProposer", claim.TypeTargetSlotID))
	assert.True(t, config.Allows("AutoReplacementProposer", claim.TypeTargetSlotID))
	assert.True(t, config.Allows("CapacityValidator", claim.TypeCanFit))
	assert.False(t, config.Allows("TaskPlacementProposer", claim.TypeCanFit))
	assert.Equal(t, []string{"can_fit"}, config.RequiredFields("place"))
}

func TestMarshal_ParsesBack(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	config, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().Producers(), config.Producers())
	assert.Equal(t, Default().Allowed("CapacityValidator"), config.Allowed("CapacityValidator"))
	assert.Equal(t, 150*time.Second, config.LockTTL())
}

func TestParse_LockTTLCoversLockedCalls(t *testing.T) {
	base := "version: \"1.0\"\ncapabilities:\n  A: [can_fit]\ncontroller:\n"

	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr string
	}{
		{name: "derived from call timeout", yaml: base + "  call_timeout: 20s\n", want: 100 * time.Second},
		{name: "floor for short timeouts", yaml: base + "  call_timeout: 1s\n", want: 30 * time.Second},
		{name: "floor when timeouts disabled", yaml: base + "  call_timeout: 0s\n", want: 30 * time.Second},
		{name: "explicit ttl kept", yaml: base + "  call_timeout: 10s\n  lock_ttl: 45s\n", want: 45 * time.Second},
		{name: "explicit ttl too short", yaml: base + "  call_timeout: 30s\n  lock_ttl: 30s\n", wantErr: "shorter than the 3 call timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Parse([]byte(tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, config.LockTTL())
		})
	}
}

func TestDefault_LockOutlivesLockedCalls(t *testing.T) {
	config := Default()
	assert.Greater(t, config.LockTTL(), 3*config.CallTimeout())
}
