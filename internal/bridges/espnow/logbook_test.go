package espnow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeEvent(t *testing.T) {
	te := newTestEngine(t)
	te.feed(t, `{"MAC":"AA","name":"Hall Remote"}`)

	tests := []struct {
		name string
		data map[string]any
		want LogbookEntry
	}{
		{
			"type and subtype with value",
			map[string]any{"type": "button", "subtype": "double_click", "value": int64(2), "device_id": "dev-1"},
			LogbookEntry{Name: "Hall Remote", Message: "Button - Double Click event was fired with value: 2"},
		},
		{
			"same subtype is not repeated",
			map[string]any{"type": "press", "subtype": "press", "device_id": "dev-1"},
			LogbookEntry{Name: "Hall Remote", Message: "Press event was fired"},
		},
		{
			"type containing event",
			map[string]any{"type": "boot_event", "device_id": "dev-1"},
			LogbookEntry{Name: "Hall Remote", Message: "Boot Event was fired"},
		},
		{
			"falsy value omitted",
			map[string]any{"type": "tap", "value": int64(0)},
			LogbookEntry{Name: "Unknown device", Message: "Tap event was fired"},
		},
		{
			"parameters",
			map[string]any{"type": "scene", "params": map[string]any{"id": int64(4)}, "device_id": "missing"},
			LogbookEntry{Name: "Unknown device", Message: "Scene event was fired with parameters: {\"id\":4}"},
		},
		{
			"missing type",
			map[string]any{},
			LogbookEntry{Name: "Unknown device", Message: "Esp Now Event was fired"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeEvent(te.Nodes(), tt.data))
		})
	}
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Hello World", titleCase("hello WORLD"))
	assert.Equal(t, "Btn1X", titleCase("btn1x"))
	assert.Equal(t, "A - B", titleCase("a - b"))
}
