package grading

import (
	"strconv"
	"sync"
)

// Threshold maps an inclusive minimum percentage to a grade value and label.
type Threshold struct {
	Value      float64 `json:"value"`       // numeric grade, e.g. 1.0
	Label      string  `json:"label"`       // e.g. "sehr gut"
	MinPercent float64 `json:"min_percent"` // inclusive lower bound
}

// Scale is a set of thresholds. Resolution picks the threshold with the
// highest MinPercent at or below the percentage; iteration order does not
// matter.
type Scale struct {
	Name       string      `json:"name"`
	Thresholds []Threshold `json:"thresholds"`
}

// Validate rejects empty scales, bounds outside 0..100 and duplicate bounds.
func (s Scale) Validate() error {
	if len(s.Thresholds) == 0 {
		return &ValidationError{Field: "thresholds", Reason: "scale has no thresholds"}
	}
	seen := make(map[float64]struct{}, len(s.Thresholds))
	for _, t := range s.Thresholds {
		if !isFinite(t.MinPercent) || t.MinPercent < 0 || t.MinPercent > 100 {
			return &ValidationError{Field: "min_percent", Reason: "must be between 0 and 100"}
		}
		if _, dup := seen[t.MinPercent]; dup {
			return &ValidationError{Field: "min_percent", Reason: "duplicate threshold bound"}
		}
		seen[t.MinPercent] = struct{}{}
	}
	return nil
}

// Resolve maps a percentage to the threshold that covers it. A percentage
// below every threshold yields ScaleExhaustedError, never a silent default.
func (s Scale) Resolve(pct float64) (Threshold, error) {
	if !isFinite(pct) {
		return Threshold{}, &ValidationError{Field: "percentage", Reason: "not a finite number"}
	}
	best := -1
	for i, t := range s.Thresholds {
		if pct < t.MinPercent {
			continue
		}
		if best < 0 || t.MinPercent > s.Thresholds[best].MinPercent {
			best = i
		}
	}
	if best < 0 {
		return Threshold{}, &ScaleExhaustedError{Scale: s.Name, Percentage: pct}
	}
	return s.Thresholds[best], nil
}

// FormatValue renders a grade value the way transcripts print it.
func FormatValue(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

// DefaultScaleKey identifies the scale used when a course has none of its own.
const DefaultScaleKey = "german"

// German returns the standard German university scale, 1.0 best, 5.0 failed.
func German() Scale {
	return Scale{
		Name: DefaultScaleKey,
		Thresholds: []Threshold{
			{Value: 1.0, Label: "sehr gut", MinPercent: 95},
			{Value: 1.3, Label: "sehr gut", MinPercent: 90},
			{Value: 1.7, Label: "gut", MinPercent: 85},
			{Value: 2.0, Label: "gut", MinPercent: 80},
			{Value: 2.3, Label: "gut", MinPercent: 75},
			{Value: 2.7, Label: "befriedigend", MinPercent: 70},
			{Value: 3.0, Label: "befriedigend", MinPercent: 65},
			{Value: 3.3, Label: "befriedigend", MinPercent: 60},
			{Value: 3.7, Label: "ausreichend", MinPercent: 55},
			{Value: 4.0, Label: "ausreichend", MinPercent: 50},
			{Value: 5.0, Label: "nicht ausreichend", MinPercent: 0},
		},
	}
}

// PassingValue is the worst grade value that still passes on the German scale.
const PassingValue = 4.0

var (
	scaleMu  sync.RWMutex
	scaleReg = map[string]Scale{}
)

// RegisterScale binds a scale to a key like "german" or "ects.v1".
func RegisterScale(key string, s Scale) {
	scaleMu.Lock()
	defer scaleMu.Unlock()
	scaleReg[key] = s
}

// ScaleFor returns the registered scale for key, falling back to the default.
func ScaleFor(key string) Scale {
	scaleMu.RLock()
	defer scaleMu.RUnlock()
	if s, ok := scaleReg[key]; ok {
		return s
	}
	return scaleReg[DefaultScaleKey]
}

func init() { RegisterScale(DefaultScaleKey, German()) }
