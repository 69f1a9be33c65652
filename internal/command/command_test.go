package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DeepCopiesPayload(t *testing.T) {
	nested := map[string]any{"k": "v"}
	payload := map[string]any{"name": "report", "nested": nested, "tags": []any{"a"}}

	cmd := New("place", payload)
	require.NotEmpty(t, cmd.ID)

	payload["name"] = "changed"
	nested["k"] = "changed"
	payload["tags"].([]any)[0] = "changed"

	assert.Equal(t, "report", cmd.String("name"))
	assert.Equal(t, "v", cmd.Payload["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", cmd.Payload["tags"].([]any)[0])
}

func TestClone_IsIndependent(t *testing.T) {
	cmd := New("place", map[string]any{"name": "report"})
	clone := cmd.Clone()
	clone.Payload["name"] = "other"

	assert.Equal(t, cmd.ID, clone.ID)
	assert.Equal(t, "report", cmd.String("name"))
}

func TestNew_NilPayload(t *testing.T) {
	cmd := New("list", nil)
	assert.NotNil(t, cmd.Payload)
	assert.False(t, cmd.Has("anything"))
	assert.Equal(t, "", cmd.String("anything"))
}

func TestInt(t *testing.T) {
	cmd := New("place", map[string]any{
		"int":      30,
		"float":    float64(45),
		"fraction": 1.5,
		"string":   "60",
		"bad":      "sixty",
		"bool":     true,
	})

	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"int", 30, false},
		{"float", 45, false},
		{"string", 60, false},
		{"fraction", 0, true},
		{"bad", 0, true},
		{"bool", 0, true},
		{"missing", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cmd.Int(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString_FormatsNonStrings(t *testing.T) {
	cmd := New("place", map[string]any{"n": 7})
	assert.Equal(t, "7", cmd.String("n"))
}
