package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/ppiankov/folio/internal/cache"
	"github.com/ppiankov/folio/internal/llm"
	"github.com/ppiankov/folio/internal/logger"
	"github.com/ppiankov/folio/internal/model"
	"github.com/ppiankov/folio/internal/pipeline"
	"github.com/ppiankov/folio/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.1.0"

var (
	cfgFile string
	verbose bool
	logMode string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Folio - research context assembly over pre-chunked sources",
	Long: `Folio answers research questions from a pool of pre-chunked source excerpts.

It selects the excerpts that fit a fixed token budget, assembles them into
a source-attributed prompt, asks a language model for verbatim passages,
and interprets the reply without ever crashing on malformed output.

Folio quotes your sources. It does not rank, search or summarize the web.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number for Folio.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("folio v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.folio/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "log format: dev or prod (default from config)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// envKeys are the config keys that FOLIO_* variables may override
var envKeys = []string{
	"research.strict",
	"research.budget.source_context_budget",
	"research.budget.max_chunks",
	"llm.provider",
	"llm.model",
	"llm.api_key",
	"llm.base_url",
	"llm.timeout",
	"llm.http_proxy",
	"llm.https_proxy",
	"llm.no_proxy",
	"cache.enabled",
	"cache.dir",
	"concurrency.workers",
	"rate_limiting.requests_per_second",
	"rate_limiting.burst_size",
	"rate_limiting.tokens_per_minute",
	"output.log_mode",
}

// initConfig reads in .env, the config file and ENV variables
func initConfig() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.folio")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match FOLIO_*
	viper.SetEnvPrefix("FOLIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, the config file, FOLIO_* variables and the
// provider API key variables
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if verbose {
		cfg.Output.Verbose = true
	}
	if logMode != "" {
		cfg.Output.LogMode = logMode
	}

	applyProviderEnv(cfg)
	return cfg, nil
}

// applyProviderEnv fills provider credentials from the conventional variables
func applyProviderEnv(cfg *model.Config) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
}

// providerFlags are shared by every command that calls a model
type providerFlags struct {
	provider  string
	model     string
	noCache   bool
	budget    int
	maxChunks int
	strict    bool
}

func (f *providerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider ("+strings.Join(llm.Names(), ", ")+")")
	cmd.Flags().StringVar(&f.model, "model", "", "LLM model name")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the response cache")
	f.registerBudget(cmd)
	cmd.Flags().BoolVar(&f.strict, "strict", false, "reject any response that does not match the schema exactly")
}

func (f *providerFlags) registerBudget(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.budget, "budget", 0, "source context token budget (default from config)")
	cmd.Flags().IntVar(&f.maxChunks, "max-chunks", 0, "maximum chunks in the prompt (default from config)")
}

// apply overlays set flags onto cfg
func (f *providerFlags) apply(cfg *model.Config) {
	if f.provider != "" && f.provider != cfg.LLM.Provider {
		// the key resolved for the configured provider belongs to it alone
		cfg.LLM.Provider = f.provider
		cfg.LLM.APIKey = viper.GetString("llm.api_key")
		applyProviderEnv(cfg)
	}
	if f.model != "" {
		cfg.LLM.Model = f.model
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if f.strict {
		cfg.Research.Strict = true
	}
}

// overrides returns the per-request budget, nil when no budget flag is set
func (f *providerFlags) overrides() *model.TokenBudget {
	if f.budget <= 0 && f.maxChunks <= 0 {
		return nil
	}
	return &model.TokenBudget{SourceContextBudget: f.budget, MaxChunks: f.maxChunks}
}

// newLogger builds the structured logger for cfg
func newLogger(cfg *model.Config) (*logger.Logger, error) {
	return logger.New(cfg.Output.LogMode, cfg.Output.Verbose)
}

// buildResearcher wires the provider, cache and rate limiter into a researcher.
// A nil provider is allowed for commands that never call the model.
func buildResearcher(cfg *model.Config, log *logger.Logger) (*pipeline.Researcher, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithLimiter(newLimiter(cfg)),
	}
	if c := cache.NewFromConfig(cfg.Cache); c != nil {
		opts = append(opts, pipeline.WithCache(c))
	}

	return pipeline.NewResearcher(cfg, provider, opts...), nil
}

// newLimiter applies the configured limits to hosted providers only;
// a local Ollama server is never throttled
func newLimiter(cfg *model.Config) *worker.Limiter {
	rl := cfg.RateLimiting
	l := worker.NewLimiter(rl.RequestsPerSecond, rl.BurstSize, rl.TokensPerMinute)
	l.SetProviderLimits("ollama", 0, 0, 0)
	return l
}
