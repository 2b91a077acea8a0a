package espnow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyKey(t *testing.T) {
	obj := Object{{Key: "x", Value: int64(1)}}

	tests := []struct {
		name     string
		key      string
		value    any
		topLevel bool
		kind     KeyKind
		leaf     string
	}{
		{"mac at top", "MAC", "AA", true, KeySkip, ""},
		{"name at top", "name", "Kitchen", true, KeySkip, ""},
		{"name nested is a value", "name", "inner", false, KeyValue, "name"},
		{"empty key", "", int64(1), true, KeySkip, ""},
		{"sentinel key", "not_found", int64(1), false, KeySkip, ""},
		{"sentinel value", "temp", "not_found", false, KeySkip, ""},
		{"sentinel value on event", "@press", "not_found", false, KeyEvent, "press"},
		{"trigger", "^button", nil, true, KeyTrigger, "button"},
		{"event", "@button", int64(1), true, KeyEvent, "button"},
		{"config", "$temp", obj, true, KeyConfig, "temp"},
		{"sigil beats object", "@press", obj, false, KeyEvent, "press"},
		{"bare config sigil", "$", obj, false, KeyConfig, ""},
		{"structural", "env", obj, true, KeyStructural, "env"},
		{"scalar", "temp", 21.5, true, KeyValue, "temp"},
		{"null value", "temp", nil, true, KeyValue, "temp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, leaf := classifyKey(tt.key, tt.value, tt.topLevel)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.leaf, leaf)
		})
	}
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "temp", joinPath("", "temp"))
	assert.Equal(t, "env temp", joinPath("env", "temp"))
	assert.Equal(t, "env", joinPath("env", ""))
}

func TestKeyKindString(t *testing.T) {
	assert.Equal(t, "trigger", KeyTrigger.String())
	assert.Equal(t, "unknown", KeyKind(42).String())
}
