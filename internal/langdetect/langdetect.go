// Package langdetect is the seam to the third-party language-detection
// library the pipeline depends on (spec §1: "out of scope... referenced
// only by the interfaces they expose"). No language-ID library appears
// anywhere in the available dependency pack, so the default implementation
// here is a small deterministic heuristic rather than a bundled one;
// operators wire in whichever detector they prefer by implementing
// Detector.
package langdetect

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Detector identifies the natural language of a short text. It must be
// deterministic given the same seed (spec §4.5: "language detection must
// be initialized with a fixed seed so repeated runs are deterministic").
type Detector interface {
	// Detect returns a canonical BCP-47 language tag and true, or "", false
	// if the language could not be determined. It must never panic on
	// malformed or mixed-script input (spec §8: "Text body with mixed
	// scripts... must not crash").
	Detect(text string) (tag string, ok bool)
}

// ScriptHeuristicDetector is the default Detector: it buckets text by
// dominant Unicode script and maps the majority script to a plausible
// language tag, canonicalized through golang.org/x/text/language. It is
// intentionally coarse — good enough to populate body_language for
// downstream filtering, not a substitute for a real language-ID model.
type ScriptHeuristicDetector struct {
	seed int64
}

// NewScriptHeuristicDetector builds a detector seeded for determinism. The
// seed has no effect on this heuristic's output (it has no randomness) but
// is accepted so callers can initialize it exactly once at startup the way
// spec §4.5 requires of the real library.
func NewScriptHeuristicDetector(seed int64) *ScriptHeuristicDetector {
	return &ScriptHeuristicDetector{seed: seed}
}

var scriptToTag = map[string]string{
	"Latin":      "en",
	"Cyrillic":   "ru",
	"Han":        "zh",
	"Hiragana":   "ja",
	"Katakana":   "ja",
	"Hangul":     "ko",
	"Arabic":     "ar",
	"Hebrew":     "he",
	"Greek":      "el",
	"Thai":       "th",
	"Devanagari": "hi",
}

// Detect implements Detector.
func (d *ScriptHeuristicDetector) Detect(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	counts := make(map[string]int)
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsDigit(r) {
			continue
		}
		for name, table := range scriptTables {
			if unicode.Is(table, r) {
				counts[name]++
				break
			}
		}
	}

	best, bestCount := "", 0
	for name, c := range counts {
		// Ties go to the alphabetically first script name, so the result
		// does not depend on map iteration order.
		if c > bestCount || (c == bestCount && name < best) {
			best, bestCount = name, c
		}
	}
	if bestCount == 0 {
		return "", false
	}

	tag, ok := scriptToTag[best]
	if !ok {
		return "", false
	}
	canon, err := language.Parse(tag)
	if err != nil {
		return tag, true
	}
	return canon.String(), true
}

var scriptTables = map[string]*unicode.RangeTable{
	"Latin":      unicode.Latin,
	"Cyrillic":   unicode.Cyrillic,
	"Han":        unicode.Han,
	"Hiragana":   unicode.Hiragana,
	"Katakana":   unicode.Katakana,
	"Hangul":     unicode.Hangul,
	"Arabic":     unicode.Arabic,
	"Hebrew":     unicode.Hebrew,
	"Greek":      unicode.Greek,
	"Thai":       unicode.Thai,
	"Devanagari": unicode.Devanagari,
}
