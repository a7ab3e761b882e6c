package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/personaforge/personaforge/internal/kb"
	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/pipeline"
)

var (
	kbPath       string
	kbTitle      string
	kbExportPath string
)

// kbCmd represents the kb command group
var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the persona knowledge base",
	Long: `The knowledge base is a local SQLite library of saved personas and
comparisons. Saved items keep their hypothesis labels (仮説ペルソナ,
仮説比較) so consumers can always tell synthesized hypotheses from
observed facts.`,
}

var kbSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the personas and comparison from the output directory",
	Long: `Save reads <output-dir>/personas.json (and comparison.json when
present) and stores the items in the knowledge base with auto-generated
titles. Use --title to override the title when saving a single persona.

Example:
  personaforge kb save
  personaforge kb save --output-dir ./out --title 共働き時短層`,
	RunE: runKBSave,
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved personas and comparisons",
	RunE:  runKBList,
}

var kbShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one saved item as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBShow,
}

var kbDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a saved persona or comparison",
	Args:    cobra.ExactArgs(1),
	RunE:    runKBDelete,
}

var kbExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export one saved item to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBExport,
}

var kbUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Mark a saved persona as the active selection",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBUse,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search saved personas by title or summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runKBSearch,
}

func init() {
	rootCmd.AddCommand(kbCmd)
	kbCmd.AddCommand(kbSaveCmd, kbListCmd, kbShowCmd, kbDeleteCmd, kbSearchCmd, kbExportCmd, kbUseCmd)

	kbCmd.PersistentFlags().StringVar(&kbPath, "db", "", "knowledge base path (default: ~/.personaforge/kb.db)")
	kbSaveCmd.Flags().StringVar(&kbTitle, "title", "", "title override (single persona only)")
	kbExportCmd.Flags().StringVar(&kbExportPath, "out", "", "output path (default: <id>.json)")
	addOutputFlags(kbSaveCmd)
}

func openKB() (*kb.SQLiteRepository, error) {
	path := kbPath
	if path == "" {
		path = buildConfig().KB.Path
	}
	return kb.NewRepository(path)
}

func runKBSave(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	renderer := pipeline.NewRenderer(outputDir)
	var personas []model.Persona
	if err := renderer.ReadJSON(pipeline.PersonasFile, &personas); err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	if kbTitle != "" && len(personas) != 1 {
		return fmt.Errorf("--title needs exactly one persona, found %d", len(personas))
	}

	for _, persona := range personas {
		saved, err := repo.SavePersona(ctx, persona, kbTitle)
		if err != nil {
			return fmt.Errorf("save persona %s: %w", persona.ID, err)
		}
		fmt.Printf("✓ %s (%s)\n", saved.Title, saved.PersonaID)
	}

	var cmpResult model.Comparison
	if err := renderer.ReadJSON(pipeline.ComparisonFile, &cmpResult); err == nil {
		saved, err := repo.SaveComparison(ctx, cmpResult, personas, "")
		if err != nil {
			return fmt.Errorf("save comparison: %w", err)
		}
		fmt.Printf("✓ %s (%s)\n", saved.Title, saved.ComparisonID)
	}
	return nil
}

func runKBList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	personas, err := repo.ListPersonas(ctx)
	if err != nil {
		return err
	}
	comparisons, err := repo.ListComparisons(ctx)
	if err != nil {
		return err
	}

	if len(personas) == 0 && len(comparisons) == 0 {
		fmt.Println("Knowledge base is empty")
		return nil
	}
	active, err := repo.ActivePersona(ctx)
	if err != nil {
		return err
	}
	for _, p := range personas {
		marker := " "
		if p.PersonaID == active {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  [%s]\n", marker, p.PersonaID, p.Title, p.HypothesisLabel)
	}
	for _, c := range comparisons {
		fmt.Printf("  %s  %s  [%s]\n", c.ComparisonID, c.Title, c.HypothesisLabel)
	}
	return nil
}

func runKBExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	var item interface{}
	if p, err := repo.GetPersona(ctx, args[0]); err == nil {
		item = p
	} else if c, err := repo.GetComparison(ctx, args[0]); err == nil {
		item = c
	} else {
		return fmt.Errorf("no saved item with id %s", args[0])
	}

	path := kbExportPath
	if path == "" {
		path = args[0] + ".json"
	}
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("✓ Exported %s to %s\n", args[0], path)
	return nil
}

func runKBUse(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SetActivePersona(ctx, args[0]); err != nil {
		return fmt.Errorf("set active persona: %w", err)
	}
	fmt.Printf("✓ Active persona: %s\n", args[0])
	return nil
}

func runKBShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	var item interface{}
	if p, err := repo.GetPersona(ctx, args[0]); err == nil {
		item = p
	} else if c, err := repo.GetComparison(ctx, args[0]); err == nil {
		item = c
	} else {
		return fmt.Errorf("no saved item with id %s", args[0])
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(item)
}

func runKBDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.DeletePersona(ctx, args[0]); err == nil {
		fmt.Printf("✓ Deleted %s\n", args[0])
		return nil
	}
	if err := repo.DeleteComparison(ctx, args[0]); err == nil {
		fmt.Printf("✓ Deleted %s\n", args[0])
		return nil
	}
	return fmt.Errorf("no saved item with id %s", args[0])
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	repo, err := openKB()
	if err != nil {
		return err
	}
	defer repo.Close()

	hits, err := repo.SearchPersonas(ctx, args[0])
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matches")
		return nil
	}
	for _, p := range hits {
		fmt.Printf("%s  %s\n", p.PersonaID, p.Title)
	}
	return nil
}
