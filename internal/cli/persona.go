package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var personaTimeout time.Duration

// personaCmd represents the persona command
var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "Synthesize persona hypotheses from the aggregation",
	Long: `Persona asks the oracle for classification axes over the clustered
segments, then synthesizes one persona hypothesis per cluster along
those axes. A persona that arrives without evidence quotes borrows the
representative quotes of its cluster, so no persona is ever presented
without the statements it was derived from.

Axes are written to <output-dir>/persona_axes.json and personas to
<output-dir>/personas.json.

Example:
  personaforge persona
  personaforge persona --output-dir ./out --model gpt-4o`,
	RunE: runPersona,
}

func init() {
	rootCmd.AddCommand(personaCmd)

	addOracleFlags(personaCmd)
	addOutputFlags(personaCmd)
	personaCmd.Flags().DurationVar(&personaTimeout, "timeout", 5*time.Minute, "persona synthesis timeout")
}

func runPersona(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), personaTimeout)
	defer cancel()

	cfg := buildConfig()
	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, provider)
	attachProgress(p)
	renderer := pipeline.NewRenderer(cfg.Output.Dir)

	var agg model.Aggregation
	if err := renderer.ReadJSON(pipeline.AggregationFile, &agg); err != nil {
		return fmt.Errorf("load aggregation (run 'personaforge aggregate' first): %w", err)
	}

	axes, err := p.GeneratePersonaAxes(ctx, &agg)
	if err != nil {
		return fmt.Errorf("persona axes failed: %w", err)
	}
	if _, err := renderer.WriteJSON(pipeline.AxesFile, axes); err != nil {
		return err
	}
	if verbose {
		for _, axis := range axes {
			fmt.Fprintf(os.Stderr, "  axis %s: %s\n", axis.ID, axis.Name)
		}
	}

	personas, err := p.GeneratePersonas(ctx, &agg, axes)
	if err != nil {
		return fmt.Errorf("persona synthesis failed: %w", err)
	}
	path, err := renderer.WriteJSON(pipeline.PersonasFile, personas)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "✓ Synthesized %d personas along %d axes: %s\n", len(personas), len(axes), path)
	for _, persona := range personas {
		fmt.Fprintf(os.Stderr, "  %s: %s (%d evidence quotes)\n",
			persona.ID, persona.OneLineSummary, persona.Evidence.Count)
	}
	return nil
}
