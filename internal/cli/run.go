package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/ingest"
	"github.com/personaforge/personaforge/internal/kb"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var (
	runTimeout time.Duration
	saveKB     bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <path>...",
	Short: "Run the full pipeline: extract, aggregate, persona, compare",
	Long: `Run executes all four stages in order over the given sources and
writes every stage artifact to the output directory. The comparison
stage runs only when at least two personas were synthesized.

With --save-kb the personas and the comparison are also saved to the
knowledge base with auto-generated titles.

Example:
  personaforge run ./interviews/
  personaforge run ./interviews/ --segment 30代 --save-kb`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAll,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addOracleFlags(runCmd)
	addOutputFlags(runCmd)
	addSourceFlags(runCmd)
	runCmd.Flags().BoolVar(&aiAggregation, "ai-aggregation", false, "let the oracle propose the clusters")
	runCmd.Flags().BoolVar(&saveKB, "save-kb", false, "save personas and comparison to the knowledge base")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 20*time.Minute, "total pipeline timeout")
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
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

	p := pipeline.New(cfg, provider)
	attachProgress(p)
	renderer := pipeline.NewRenderer(cfg.Output.Dir)

	// Stage 1: extraction
	summary, err := p.GenerateExtractions(ctx, sources)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	if _, err := renderer.WriteJSON(pipeline.ExtractionsFile, p.Store().List()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Extracted %d records from %d sources\n", summary.Records, summary.Sources)
	if len(summary.Issues) > 0 {
		if _, err := renderer.WriteJSON(pipeline.IssuesFile, summary.Issues); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "⚠ %d integrity issues need review\n", len(summary.Issues))
	}

	// Stage 2: aggregation over the frozen records
	p.FinalizeExtractions()
	agg, err := p.GenerateAggregation(ctx)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}
	if _, err := renderer.WriteJSON(pipeline.AggregationFile, agg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Clustered %d respondents into %d segments\n",
		agg.TotalRespondents, len(agg.Clusters))

	// Stage 3: persona synthesis
	axes, err := p.GeneratePersonaAxes(ctx, agg)
	if err != nil {
		return fmt.Errorf("persona axes failed: %w", err)
	}
	if _, err := renderer.WriteJSON(pipeline.AxesFile, axes); err != nil {
		return err
	}
	personas, err := p.GeneratePersonas(ctx, agg, axes)
	if err != nil {
		return fmt.Errorf("persona synthesis failed: %w", err)
	}
	if _, err := renderer.WriteJSON(pipeline.PersonasFile, personas); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Synthesized %d personas\n", len(personas))

	var repo *kb.SQLiteRepository
	if saveKB {
		repo, err = kb.NewRepository(cfg.KB.Path)
		if err != nil {
			return fmt.Errorf("open knowledge base: %w", err)
		}
		defer repo.Close()
		for _, persona := range personas {
			saved, err := repo.SavePersona(ctx, persona, "")
			if err != nil {
				return fmt.Errorf("save persona: %w", err)
			}
			fmt.Fprintf(os.Stderr, "✓ Saved %s\n", saved.Title)
		}
	}

	// Stage 4: comparison, when there is something to compare
	if len(personas) >= 2 {
		cmpResult, err := p.GenerateComparison(ctx, personas)
		if err != nil {
			return fmt.Errorf("comparison failed: %w", err)
		}
		if _, err := renderer.WriteJSON(pipeline.ComparisonFile, cmpResult); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Compared %d personas\n", len(personas))

		if repo != nil {
			saved, err := repo.SaveComparison(ctx, *cmpResult, personas, "")
			if err != nil {
				return fmt.Errorf("save comparison: %w", err)
			}
			fmt.Fprintf(os.Stderr, "✓ Saved %s\n", saved.Title)
		}
	}

	fmt.Fprintf(os.Stderr, "✓ Artifacts written to %s\n", cfg.Output.Dir)
	return nil
}
