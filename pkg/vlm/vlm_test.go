package vlm

import (
	"testing"

	"github.com/menta2k/undertone-analyzer/pkg/types"
)

func TestParseFaceResult(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		found bool
		conf  float64
	}{
		{"plain", `{"found": true, "confidence": 0.9, "box": {"x": 0.25, "y": 0.2, "w": 0.5, "h": 0.6}}`, true, 0.9},
		{"fenced", "```json\n{\"found\": true, \"confidence\": 0.8, \"box\": {\"x\": 0.1, \"y\": 0.1, \"w\": 0.2, \"h\": 0.2}}\n```", true, 0.8},
		{"comments and trailing comma", "{\n // face\n \"found\": true, /* sure */ \"confidence\": 0.7,\n \"box\": {\"x\": 0.1, \"y\": 0.1, \"w\": 0.2, \"h\": 0.2,},\n}", true, 0.7},
		{"prose around json", `Here you go: {"found": false, "confidence": 0, "box": {"x":0,"y":0,"w":0,"h":0}} hope it helps`, false, 0},
		{"not json", "I cannot see a face in this picture.", false, 0},
		{"broken json", `{"found": tru`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFaceResult(tt.raw)
			if got.Found != tt.found {
				t.Errorf("Expected found=%v, got %v", tt.found, got.Found)
			}
			if got.Confidence != tt.conf {
				t.Errorf("Expected confidence %v, got %v", tt.conf, got.Confidence)
			}
		})
	}
}

func TestDetectionsNormalized(t *testing.T) {
	result := FaceResult{Found: true, Confidence: 0.9, Box: Box{X: 0.25, Y: 0.2, W: 0.5, H: 0.5}}

	dets := result.Detections(200, 100)
	if len(dets) != 1 {
		t.Fatalf("Expected one detection, got %d", len(dets))
	}
	want := types.BoundingBox{X: 50, Y: 20, Width: 100, Height: 50}
	if dets[0].Box != want {
		t.Errorf("Expected %+v, got %+v", want, dets[0].Box)
	}
	if dets[0].Score != 0.9 {
		t.Errorf("Expected score 0.9, got %f", dets[0].Score)
	}
}

func TestDetectionsPixelCoordinates(t *testing.T) {
	result := FaceResult{Found: true, Confidence: 1.5, Box: Box{X: 40, Y: 30, W: 80, H: 60}}

	dets := result.Detections(400, 300)
	if len(dets) != 1 {
		t.Fatalf("Expected one detection, got %d", len(dets))
	}
	want := types.BoundingBox{X: 40, Y: 30, Width: 80, Height: 60}
	if dets[0].Box != want {
		t.Errorf("Expected %+v, got %+v", want, dets[0].Box)
	}
	if dets[0].Score != 1 {
		t.Errorf("Expected clamped score 1, got %f", dets[0].Score)
	}
}

func TestDetectionsNotFound(t *testing.T) {
	if dets := (FaceResult{Found: false}).Detections(100, 100); dets != nil {
		t.Errorf("Expected no detections, got %v", dets)
	}
	if dets := (FaceResult{Found: true, Box: Box{X: 0.5, Y: 0.5}}).Detections(100, 100); dets != nil {
		t.Errorf("Expected no detections for empty box, got %v", dets)
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	raw := "```\n{\"a\": 1,}\n```"
	if got := SanitizeModelJSON(raw); got != `{"a": 1}` {
		t.Errorf("Unexpected sanitized output: %q", got)
	}
}
