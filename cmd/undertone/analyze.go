package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	undertone "github.com/menta2k/undertone-analyzer"
	"github.com/menta2k/undertone-analyzer/internal/utils"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// warmupTimeout bounds the wait for detector initialization before a batch
const warmupTimeout = 30 * time.Second

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file|dir>...",
	Short: "Analyze the undertone of one or more photos",
	Long: `Analyze estimates the skin undertone of each photo and lists matching
products. Directories are searched recursively for images.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("skin-type", "", "Filter products by skin type: normal, dry, oily or sensitive")
	analyzeCmd.Flags().Bool("json", false, "Output as JSON")
	analyzeCmd.Flags().String("debug-out", "", "Directory for debug overlays showing the face and sampling region")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")
	debugOut := mustGetString(cmd, "debug-out")

	var skinType *types.SkinType
	if v := mustGetString(cmd, "skin-type"); v != "" {
		parsed, err := types.ParseSkinType(v)
		if err != nil {
			return err
		}
		skinType = &parsed
	}

	files, err := utils.ExpandInputs(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", strings.Join(args, ", "))
	}

	analyzer, err := undertone.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	warmCtx, cancelWarm := context.WithTimeout(ctx, warmupTimeout)
	if err := analyzer.Warmup(warmCtx); err != nil {
		log.Printf("Warning: face detection unavailable, sampling whole images: %v", err)
	}
	cancelWarm()

	bar := newAnalyzeProgressBar(len(files), jsonOutput, cmd.ErrOrStderr())
	reports := make([]undertone.Report, 0, len(files))
	failed := 0
	for _, file := range files {
		report, err := analyzeOne(ctx, analyzer, file, skinType, debugOut)
		if err != nil {
			return err
		}
		if !report.OK {
			failed++
		}
		reports = append(reports, report)
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := outputJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, report := range reports {
			printReport(out, report)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(reports))
	}
	return nil
}

// analyzeOne analyzes a file and writes its debug overlay when requested
func analyzeOne(ctx context.Context, analyzer *undertone.Analyzer, file string, skinType *types.SkinType, debugOut string) (undertone.Report, error) {
	src, err := undertone.ReadSource(file)
	if err != nil {
		return undertone.Report{}, err
	}
	report, err := analyzer.Analyze(ctx, src, skinType)
	if err != nil {
		return undertone.Report{}, err
	}

	if debugOut != "" && report.OK {
		out := analyzer.Config().Output
		path := utils.GenerateOutputFilename(file, debugOut, "", out.Suffix, out.DebugFormat)
		if err := analyzer.WriteDebugOverlay(src, report.Outcome, path); err != nil {
			log.Printf("debug overlay for %s failed: %v", file, err)
		} else {
			log.Printf("wrote %s", path)
		}
	}
	return report, nil
}

// newAnalyzeProgressBar creates a progress bar for batches, or nil for a
// single file or JSON output.
func newAnalyzeProgressBar(count int, jsonOutput bool, w io.Writer) *progressbar.ProgressBar {
	if jsonOutput || count < 2 {
		return nil
	}
	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func outputJSON(w io.Writer, reports []undertone.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(reports) == 1 {
		return enc.Encode(reports[0])
	}
	return enc.Encode(reports)
}

func printReport(w io.Writer, report undertone.Report) {
	fmt.Fprintf(w, "%s\n", report.Name)
	if !report.OK {
		fmt.Fprintf(w, "  Error:     %s (%s)\n", report.Message, report.Error)
		return
	}

	fmt.Fprintf(w, "  Undertone: %s\n", report.Label)
	fmt.Fprintf(w, "  Sample:    %s\n", report.Hex)
	if report.Face != nil {
		fmt.Fprintf(w, "  Face:      %dx%d at %d,%d\n", report.Face.Width, report.Face.Height, report.Face.X, report.Face.Y)
	} else {
		fmt.Fprintf(w, "  Face:      not found, sampled whole image\n")
	}
	if len(report.Palette) > 0 {
		fmt.Fprintf(w, "  Palette:   %s\n", strings.Join(report.Palette, " "))
	}
	if len(report.Products) == 0 {
		fmt.Fprintf(w, "  Products:  none\n")
		return
	}
	fmt.Fprintf(w, "  Products:\n")
	for _, p := range report.Products {
		fmt.Fprintf(w, "    - %s (%s)\n", p.Name, p.ID)
	}
}
