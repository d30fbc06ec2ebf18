package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	undertone "github.com/menta2k/undertone-analyzer"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

func writeTestImage(t *testing.T, path string, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
}

// execute runs the root command with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommandJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "face.png")
	writeTestImage(t, path, color.NRGBA{200, 100, 50, 255})
	debugDir := filepath.Join(dir, "debug")

	out, err := execute(t, "analyze",
		"--config", filepath.Join(dir, "missing.json"),
		"--detector", "none",
		"--json=true",
		"--skin-type", "dry",
		"--debug-out", debugDir,
		path)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var report undertone.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Output is not a report: %v\n%s", err, out)
	}
	if !report.OK || report.Label != types.Warm {
		t.Errorf("Expected warm report, got %+v", report)
	}
	for _, p := range report.Products {
		if !p.Suits(types.SkinDry) {
			t.Errorf("Product %s does not suit dry skin", p.ID)
		}
	}

	if _, err := os.Stat(filepath.Join(debugDir, "face_undertone.png")); err != nil {
		t.Errorf("Expected debug overlay: %v", err)
	}
}

func TestAnalyzeCommandText(t *testing.T) {
	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "a.png"), color.NRGBA{90, 110, 160, 255})
	writeTestImage(t, filepath.Join(dir, "b.png"), color.NRGBA{128, 128, 128, 255})

	out, err := execute(t, "analyze",
		"--config", filepath.Join(dir, "missing.json"),
		"--detector", "none",
		"--json=false",
		"--skin-type=",
		"--debug-out=",
		dir)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	for _, want := range []string{"a.png", "Undertone: cool", "b.png", "Undertone: neutral", "sampled whole image"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommandFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.png")
	os.WriteFile(path, []byte("not a png"), 0644)

	out, err := execute(t, "analyze",
		"--config", filepath.Join(dir, "missing.json"),
		"--detector", "none",
		"--json=false",
		"--skin-type=",
		"--debug-out=",
		path)
	if err == nil {
		t.Fatal("Expected an error for a broken image")
	}
	if !strings.Contains(out, string(types.KindDecode)) {
		t.Errorf("Expected decode_error in output:\n%s", out)
	}
}

func TestAnalyzeCommandBadSkinType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "face.png")
	writeTestImage(t, path, color.NRGBA{200, 100, 50, 255})

	if _, err := execute(t, "analyze",
		"--config", filepath.Join(dir, "missing.json"),
		"--detector", "none",
		"--skin-type", "scaly",
		path); err == nil {
		t.Error("Expected error for unknown skin type")
	}
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	out, err := execute(t, "config", "init", "--config", path, "--force=false")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("Expected path in output, got %q", out)
	}
	if _, err := execute(t, "config", "init", "--config", path, "--force=false"); err == nil {
		t.Error("Expected error when the file already exists")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "undertone "+undertone.Version) {
		t.Errorf("Unexpected version output %q", out)
	}
}
