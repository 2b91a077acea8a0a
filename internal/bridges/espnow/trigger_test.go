package espnow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger string
		config  any
		key     string
		payload map[string]any
	}{
		{"null", "Button One", nil, "button_one", map[string]any{}},
		{"empty object", "press", Object{}, "press", map[string]any{}},
		{"false", "press", false, "press", map[string]any{}},
		{"string verbatim", "x", "Long Press", "Long Press", map[string]any{}},
		{"type only", "x", Object{{Key: "t", Value: "button"}}, "button", map[string]any{}},
		{
			"type and subtype with payload", "x",
			Object{{Key: "t", Value: "button"}, {Key: "s", Value: "double"}, {Key: "n", Value: int64(2)}},
			"button|double", map[string]any{"n": int64(2)},
		},
		{"empty type falls back", "Hold It", Object{{Key: "t", Value: ""}, {Key: "s", Value: "x"}}, "hold_it|x", map[string]any{}},
		{"numeric type", "x", Object{{Key: "t", Value: int64(7)}}, "7", map[string]any{}},
		{
			"nested payload is plain", "x",
			Object{{Key: "p", Value: Object{{Key: "a", Value: true}}}},
			"x", map[string]any{"p": map[string]any{"a": true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, payload, err := deriveTrigger(tt.trigger, tt.config)
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.payload, payload)
		})
	}
}

func TestDeriveTrigger_Invalid(t *testing.T) {
	for _, config := range []any{int64(3), 1.5, true, []any{"a"}} {
		_, _, err := deriveTrigger("x", config)
		assert.ErrorIs(t, err, ErrInvalidTriggerConfig, "config %v", config)
	}
}

func TestSplitJoinTriggerKey(t *testing.T) {
	typ, sub, ok := SplitTriggerKey("button|double|x")
	assert.Equal(t, "button", typ)
	assert.Equal(t, "double|x", sub)
	assert.True(t, ok)

	typ, sub, ok = SplitTriggerKey("button")
	assert.Equal(t, "button", typ)
	assert.Empty(t, sub)
	assert.False(t, ok)

	assert.Equal(t, "a|b", JoinTriggerKey("a", "b"))
	assert.Equal(t, "a", JoinTriggerKey("a", ""))
}

func TestNode_TriggerList(t *testing.T) {
	n := newNode("AA", "Remote", "dev-1")
	n.mu.Lock()
	require.NoError(t, n.configureTrigger("click", Object{{Key: "t", Value: "button"}, {Key: "s", Value: "single"}}))
	require.NoError(t, n.configureTrigger("boot", nil))
	assert.True(t, n.dirty)
	n.mu.Unlock()

	list := n.TriggerList()
	require.Len(t, list, 2)
	assert.Equal(t, TriggerInfo{Key: "boot", Type: "boot", Payload: map[string]any{}}, list[0])
	assert.Equal(t, TriggerInfo{Key: "button|single", Type: "button", Subtype: "single", Payload: map[string]any{}}, list[1])
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue(int64(1), 1.0))
	assert.False(t, sameValue(int64(1), "1"))
	assert.True(t, sameValue(map[string]any{"a": []any{int64(1)}}, map[string]any{"a": []any{1.0}}))
	assert.False(t, sameValue(map[string]any{"a": 1.0}, map[string]any{"b": 1.0}))
	assert.True(t, sameValue(Object{{Key: "a", Value: int64(2)}}, map[string]any{"a": 2.0}))
	assert.True(t, sameValue(nil, nil))
	assert.False(t, sameValue("x", Object{}))
}

func TestSlugAndTruthy(t *testing.T) {
	assert.Equal(t, "esp_now_aa:bb_my_node_x", slug("esp_now_AA:BB_My-Node x"))
	assert.False(t, truthy(int64(0)))
	assert.False(t, truthy(""))
	assert.False(t, truthy(Object{}))
	assert.True(t, truthy("0"))
	assert.True(t, truthy([]any{nil}))
}

func TestDurableIDStable(t *testing.T) {
	a := DurableID(KindMeasurement, "AA:BB", "Living Room", "env temp")
	b := DurableID(KindMeasurement, "AA:BB", "Living Room", "env temp")
	assert.Equal(t, a, b)
	assert.Equal(t, "sensor.esp_now_aa:bb_living_room_env_temp", a)
	assert.Equal(t, "binary_sensor.esp_now_aa:bb_living_room_env_temp", DurableID(KindBoolean, "AA:BB", "Living Room", "env temp"))
}
