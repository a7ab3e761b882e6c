package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/ingest"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var extractTimeout time.Duration

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract <path>...",
	Short: "Extract respondent records from qualitative sources",
	Long: `Extract reads interview transcripts or survey comments (plain text or
HTML) and asks the oracle for structured respondent records. Every
record carries verbatim quotes with line provenance; quotes that cannot
be traced back to the source are flagged as integrity issues.

Sources are processed concurrently. Records are written to
<output-dir>/extractions.json and issues to
<output-dir>/integrity_issues.json.

Example:
  personaforge extract ./interviews/
  personaforge extract interview_001.txt interview_002.txt --segment 30代
  personaforge extract ./interviews/ --workers 8 --rps 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	addOracleFlags(extractCmd)
	addOutputFlags(extractCmd)
	addSourceFlags(extractCmd)
	extractCmd.Flags().DurationVar(&extractTimeout, "timeout", 10*time.Minute, "total extraction timeout")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	cfg := buildConfig()
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	sources, err := ingest.LoadSources(args, sourceMeta())
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Loaded %d sources\n", len(sources))
	}

	p := pipeline.New(cfg, provider)
	attachProgress(p)
	summary, err := p.GenerateExtractions(ctx, sources)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output.Dir)
	path, err := renderer.WriteJSON(pipeline.ExtractionsFile, p.Store().List())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Extracted %d records from %d sources: %s\n", summary.Records, summary.Sources, path)

	if len(summary.Issues) > 0 {
		issuesPath, err := renderer.WriteJSON(pipeline.IssuesFile, summary.Issues)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "⚠ %d integrity issues need review: %s\n", len(summary.Issues), issuesPath)
	}
	for _, f := range summary.Failed {
		fmt.Fprintf(os.Stderr, "✗ %s: %v\n", f.SourceID, f.Err)
	}

	return nil
}
