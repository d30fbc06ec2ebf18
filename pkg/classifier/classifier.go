// Package classifier maps a sampled skin color to an undertone label.
package classifier

import "github.com/menta2k/undertone-analyzer/pkg/types"

// WarmCoolThreshold is how far red and blue must diverge, in 8-bit channel
// units, before a sample is called warm or cool.
const WarmCoolThreshold = 10

// Classify returns warm when red exceeds blue by more than the threshold,
// cool when blue exceeds red by more than the threshold, neutral otherwise.
func Classify(sample types.ColorSample) types.UndertoneLabel {
	r, b := int(sample.R), int(sample.B)
	switch {
	case r > b+WarmCoolThreshold:
		return types.Warm
	case b > r+WarmCoolThreshold:
		return types.Cool
	default:
		return types.Neutral
	}
}
