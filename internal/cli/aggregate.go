package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/oracle"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var aggregateTimeout time.Duration

// aggregateCmd represents the aggregate command
var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Cluster extracted records into behavioral segments",
	Long: `Aggregate finalizes the extraction records from a previous extract run
and clusters them by role, relationship, and top decision criteria.
Finalizing freezes the records: aggregation never runs over a dataset
that is still being edited.

Clustering is rule-based by default. With --ai-aggregation the oracle
proposes the clusters instead, and the rule-based engine remains the
fallback whenever the proposal does not cleanly partition the
respondents.

Example:
  personaforge aggregate
  personaforge aggregate --output-dir ./out --ai-aggregation`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	addOracleFlags(aggregateCmd)
	addOutputFlags(aggregateCmd)
	aggregateCmd.Flags().BoolVar(&aiAggregation, "ai-aggregation", false, "let the oracle propose the clusters")
	aggregateCmd.Flags().DurationVar(&aggregateTimeout, "timeout", 5*time.Minute, "aggregation timeout")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), aggregateTimeout)
	defer cancel()

	cfg := buildConfig()

	var provider oracle.Provider
	if cfg.Oracle.AIAggregation {
		var err error
		provider, err = newProvider(cfg)
		if err != nil {
			return err
		}
	}

	p := pipeline.New(cfg, provider)
	attachProgress(p)
	renderer := pipeline.NewRenderer(cfg.Output.Dir)

	var records []model.ExtractionRecord
	if err := renderer.ReadJSON(pipeline.ExtractionsFile, &records); err != nil {
		return fmt.Errorf("load extractions (run 'personaforge extract' first): %w", err)
	}
	for i := range records {
		if err := p.Store().Create(&records[i]); err != nil {
			return fmt.Errorf("load record %s: %w", records[i].RespondentID, err)
		}
	}
	p.FinalizeExtractions()

	agg, err := p.GenerateAggregation(ctx)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	path, err := renderer.WriteJSON(pipeline.AggregationFile, agg)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Clustered %d respondents into %d segments: %s\n",
		agg.TotalRespondents, len(agg.Clusters), path)
	for _, c := range agg.Clusters {
		fmt.Fprintf(os.Stderr, "  %s: %s (%d respondents, %.0f%%)\n",
			c.ID, c.Name, len(c.RespondentIDs), c.Prevalence*100)
	}
	return nil
}
