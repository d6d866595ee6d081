// Package strategy decides how hard a frame is and which pre-processing
// attempts the estimator gets for it.
package strategy

import "fmt"

// Category is a processing-intensity class.
type Category string

const (
	Severe       Category = "severe"
	Rotation     Category = "rotation"
	KnownProblem Category = "known_problem"
	Moderate     Category = "moderate"
	Standard     Category = "standard"
)

// Categories lists every category from hardest to easiest.
var Categories = []Category{Severe, Rotation, KnownProblem, Moderate, Standard}

// ParseCategory converts a config string into a Category.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// escalate returns the next harder category used after a weak frame.
func escalate(c Category) Category {
	switch c {
	case Standard:
		return Moderate
	case Moderate:
		return KnownProblem
	case KnownProblem, Rotation:
		return Severe
	}
	return c
}

// Range assigns a category to the inclusive frame interval [From, To].
type Range struct {
	From     int      `json:"from"`
	To       int      `json:"to"`
	Category Category `json:"category"`
}

// Prior is what the classifier knows about the previous frame.
type Prior struct {
	HasScore bool
	Score    float64
	// Hint is set when frame analysis found the frame dark, flat or blurred
	// by motion.
	Hint bool
}

// ClassifierConfig holds the static assignment and escalation threshold.
type ClassifierConfig struct {
	Ranges        []Range
	Frames        map[int]Category
	EscalateBelow float64
}

// DefaultClassifierConfig returns a config with no static assignment.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{EscalateBelow: 0.7}
}

// Classifier maps frame ids to categories.
type Classifier struct {
	config ClassifierConfig
}

// NewClassifier creates a Classifier. The config is copied.
func NewClassifier(config ClassifierConfig) *Classifier {
	c := ClassifierConfig{
		Ranges:        append([]Range(nil), config.Ranges...),
		Frames:        make(map[int]Category, len(config.Frames)),
		EscalateBelow: config.EscalateBelow,
	}
	for id, cat := range config.Frames {
		c.Frames[id] = cat
	}
	return &Classifier{config: c}
}

// Classify returns the category for frameID. Explicit frame assignments
// win over ranges, and the first matching range wins. A weak previous score
// escalates one step; an analyzer hint lifts Standard frames to Moderate.
func (c *Classifier) Classify(frameID int, prior Prior) Category {
	cat := c.static(frameID)

	if prior.HasScore && prior.Score < c.config.EscalateBelow {
		cat = escalate(cat)
	}
	if prior.Hint && cat == Standard {
		cat = Moderate
	}
	return cat
}

func (c *Classifier) static(frameID int) Category {
	if cat, ok := c.config.Frames[frameID]; ok {
		return cat
	}
	for _, r := range c.config.Ranges {
		if frameID >= r.From && frameID <= r.To {
			return r.Category
		}
	}
	return Standard
}
