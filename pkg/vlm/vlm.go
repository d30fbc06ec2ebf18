// Package vlm holds the face-locator prompt and response parsing shared by
// the vision language model backends (ollama, llama.cpp).
package vlm

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// FacePrompt asks the model for the single most prominent face
const FacePrompt = `You are a face locator.

Return JSON only:
{
  "found": true,
  "confidence": 0.0,
  "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels), origin at the top-left corner.
- The box must tightly include the single most prominent human face, forehead to chin.
- confidence is your certainty in [0,1] that the box contains a real human face.
- If there is no visible human face, return {"found": false, "confidence": 0.0, "box": {"x": 0, "y": 0, "w": 0, "h": 0}}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Box is a box in normalized [0,1] coordinates
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FaceResult is the model's answer to FacePrompt
type FaceResult struct {
	Found      bool    `json:"found"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// ParseFaceResult parses a model response. Anything that cannot be read as a
// face answer is treated as "no face" rather than an error.
func ParseFaceResult(raw string) FaceResult {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return FaceResult{}
	}

	var result FaceResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return FaceResult{}
	}
	return result
}

// Detections converts a face answer into pixel detections for an image of
// the given size. Boxes that look like pixel coordinates are normalized first.
func (r FaceResult) Detections(width, height int) []types.Detection {
	if !r.Found || width <= 0 || height <= 0 {
		return nil
	}

	b := normalizeBox(r.Box, width, height)
	if b.W <= 0 || b.H <= 0 {
		return nil
	}

	fw, fh := float64(width), float64(height)
	x0 := int(math.Round(b.X * fw))
	y0 := int(math.Round(b.Y * fh))
	x1 := int(math.Round(math.Min(b.X+b.W, 1) * fw))
	y1 := int(math.Round(math.Min(b.Y+b.H, 1) * fh))
	if x1 <= x0 || y1 <= y0 {
		return nil
	}

	return []types.Detection{{
		Box:   types.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0},
		Score: clamp(r.Confidence, 0, 1),
	}}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from
// a JSON response and keeps only the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

func normalizeBox(b Box, imgW, imgH int) Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}
	return Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
