package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var (
	compareTimeout time.Duration
	compareIDs     []string
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare persona hypotheses side by side",
	Long: `Compare builds a side-by-side table of the eight persona fields for
two or more personas. The field tables always come from the personas
themselves; the oracle contributes only an optional common/differing
analysis on top, and a deterministic fallback analysis is used when the
oracle is unavailable.

Example:
  personaforge compare
  personaforge compare --personas persona-1,persona-3`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	addOracleFlags(compareCmd)
	addOutputFlags(compareCmd)
	compareCmd.Flags().StringSliceVar(&compareIDs, "personas", nil, "persona ids to compare (default: all)")
	compareCmd.Flags().DurationVar(&compareTimeout, "timeout", 2*time.Minute, "comparison timeout")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), compareTimeout)
	defer cancel()

	cfg := buildConfig()
	provider, err := newProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: oracle unavailable, using fallback analysis: %v\n", err)
		provider = nil
	}

	renderer := pipeline.NewRenderer(cfg.Output.Dir)
	var personas []model.Persona
	if err := renderer.ReadJSON(pipeline.PersonasFile, &personas); err != nil {
		return fmt.Errorf("load personas (run 'personaforge persona' first): %w", err)
	}
	personas, err = selectPersonas(personas, compareIDs)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, provider)
	attachProgress(p)
	cmpResult, err := p.GenerateComparison(ctx, personas)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	path, err := renderer.WriteJSON(pipeline.ComparisonFile, cmpResult)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ Compared %s: %s\n", strings.Join(cmpResult.Personas, ", "), path)
	return nil
}

// selectPersonas filters by id, keeping input order. An empty id list
// selects everything.
func selectPersonas(personas []model.Persona, ids []string) ([]model.Persona, error) {
	if len(ids) == 0 {
		return personas, nil
	}
	byID := make(map[string]model.Persona, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}
	out := make([]model.Persona, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown persona id: %s", id)
		}
		out = append(out, p)
	}
	return out, nil
}
