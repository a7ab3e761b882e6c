package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/personaforge/personaforge/internal/cache"
	"github.com/personaforge/personaforge/internal/model"
	"github.com/personaforge/personaforge/internal/oracle"
	"github.com/personaforge/personaforge/internal/pipeline"
	"github.com/personaforge/personaforge/internal/worker"
)

var (
	outputDir     string
	providerName  string
	modelName     string
	workers       int
	rps           float64
	noCache       bool
	aiAggregation bool

	interviewName string
	interviewDate string
	segment       string
	owner         string
)

func addOracleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&providerName, "provider", "openai", "oracle provider (openai, none)")
	cmd.Flags().StringVar(&modelName, "model", "gpt-4o-mini", "oracle model name")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent extraction workers")
	cmd.Flags().Float64Var(&rps, "rps", 1, "oracle requests per second")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable oracle response cache")
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outputDir, "output-dir", "./personaforge-out", "artifact output directory")
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&interviewName, "interview-name", "", "interview or survey name attached to every source")
	cmd.Flags().StringVar(&interviewDate, "date", "", "interview date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&segment, "segment", "", "respondent segment label")
	cmd.Flags().StringVar(&owner, "owner", "", "owner attached to every source")
}

// buildConfig layers flags over the config file and defaults. It never
// fails on a missing API key; newProvider checks that when the oracle is
// actually needed.
func buildConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetString("oracle.model"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := viper.GetString("kb.path"); v != "" {
		cfg.KB.Path = v
	}

	cfg.Oracle.Provider = providerName
	if cfg.Oracle.Provider == "none" {
		cfg.Oracle.Provider = ""
	}
	if modelName != "" {
		cfg.Oracle.Model = modelName
	}
	cfg.Oracle.AIAggregation = aiAggregation
	cfg.Concurrency.Workers = workers
	cfg.Concurrency.RequestsPerSecond = rps
	cfg.Cache.Enabled = !noCache
	cfg.Output.Verbose = verbose
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}

	if cfg.Oracle.Provider == "openai" {
		cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			cfg.Oracle.BaseURL = baseURL
		}
	}
	return cfg
}

// newProvider builds the oracle provider with its rate limiter and
// response cache. A disabled oracle returns nil without error.
func newProvider(cfg *model.Config) (oracle.Provider, error) {
	if cfg.Oracle.Provider == "" {
		return nil, nil
	}
	if cfg.Oracle.Provider == "openai" && cfg.Oracle.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts := oracle.Options{
		Limiter: worker.NewLimiter(cfg.Concurrency.RequestsPerSecond, cfg.Concurrency.Burst),
		Verbose: cfg.Output.Verbose,
	}
	if cfg.Cache.Enabled {
		opts.Cache = cache.NewResponses(cache.NewMemoryCache(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL)
	}
	return oracle.NewProvider(cfg.Oracle, opts)
}

// attachProgress streams stage progress to stderr in verbose mode.
func attachProgress(p *pipeline.Pipeline) {
	if verbose {
		p.SetProgress(func(stage, message string) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", stage, message)
		})
	}
}

func sourceMeta() model.StatementMeta {
	return model.StatementMeta{
		InterviewName: interviewName,
		InterviewDate: interviewDate,
		Segment:       segment,
		Owner:         owner,
	}
}
