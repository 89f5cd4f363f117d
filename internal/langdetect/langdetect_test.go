package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectEmptyText(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	tag, ok := d.Detect("   ")
	assert.False(t, ok)
	assert.Empty(t, tag)
}

func TestDetectLatinText(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	tag, ok := d.Detect("Vote for change this November!")
	assert.True(t, ok)
	assert.Equal(t, "en", tag)
}

func TestDetectCyrillicText(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	tag, ok := d.Detect("Голосуйте за перемены")
	assert.True(t, ok)
	assert.Equal(t, "ru", tag)
}

func TestDetectHanText(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	tag, ok := d.Detect("投票支持改变")
	assert.True(t, ok)
	assert.Equal(t, "zh", tag)
}

func TestDetectDigitsAndPunctuationOnlyIsUndetermined(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	tag, ok := d.Detect("123-456-7890!")
	assert.False(t, ok)
	assert.Empty(t, tag)
}

func TestDetectMixedScriptDoesNotPanic(t *testing.T) {
	d := NewScriptHeuristicDetector(42)
	assert.NotPanics(t, func() {
		_, _ = d.Detect("Hello мир 世界 123")
	})
}

func TestDetectIsDeterministicAcrossInstances(t *testing.T) {
	text := "Paid for by the campaign committee"
	a, okA := NewScriptHeuristicDetector(1).Detect(text)
	b, okB := NewScriptHeuristicDetector(999).Detect(text)
	assert.Equal(t, okA, okB)
	assert.Equal(t, a, b)
}
