package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/folio/internal/llm"
	"github.com/ppiankov/folio/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const precedence = `Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (FOLIO_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_BASE_URL)
  3. Config file (~/.folio/config.yaml)
  4. Defaults`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Folio configuration",
	Long:  "Inspect, create and check Folio configuration.\n\n" + precedence,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Print the configuration after merging defaults, the config file and environment variables. API keys are never shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if path := viper.ConfigFileUsed(); path != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}

		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println("  Effective Configuration")
		fmt.Println("═══════════════════════════════════════════════════════════")
		fmt.Println()
		fmt.Print(string(data))
		fmt.Println()
		fmt.Println(precedence)
		return nil
	},
}

var initForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Write the built-in defaults to ~/.folio/config.yaml (or the --config path) as a commented starting point.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("find home directory: %w", err)
			}
			path = filepath.Join(home, ".folio", "config.yaml")
		}

		if err := writeDefaultConfig(path, initForce); err != nil {
			return err
		}

		fmt.Printf("✓ Wrote default configuration: %s\n", path)
		fmt.Printf("  Review it with: folio config show\n")
		return nil
	},
}

// writeDefaultConfig writes the commented default config to path,
// refusing to replace an existing file unless force is set
func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Folio configuration\n#\n")
	for _, line := range strings.Split(precedence, "\n") {
		b.WriteString("# " + line + "\n")
	}
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n# API keys belong in the environment or a .env file, never here:\n")
	b.WriteString("#   OPENAI_API_KEY=sk-...\n")
	b.WriteString("#   ANTHROPIC_API_KEY=sk-ant-...\n")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var checkTimeout time.Duration

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and reach the provider",
	Long:  `Validate budget and limit settings, then confirm the configured model provider answers. Exits non-zero on any problem.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return checkConfig(cmd.Context(), cfg, checkTimeout)
	},
}

// checkConfig validates cfg and probes its provider, printing one line per check
func checkConfig(ctx context.Context, cfg *model.Config, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ settings: %v\n", err)
		return fmt.Errorf("invalid configuration: %w", err)
	}
	fmt.Printf("✓ settings: budget %d tokens, at most %d chunks\n",
		cfg.Research.Budget.SourceContextBudget, cfg.Research.Budget.MaxChunks)

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		fmt.Printf("✗ provider: %v\n", err)
		return fmt.Errorf("create provider: %w", err)
	}
	if provider == nil {
		fmt.Println("- provider: none configured (prompt, context and parse still work)")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if !provider.IsAvailable(ctx) {
		fmt.Printf("✗ provider: %s is not reachable or not authorized\n", provider.Name())
		return fmt.Errorf("provider %s unavailable", provider.Name())
	}
	fmt.Printf("✓ provider: %s reachable\n", provider.Name())
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)

	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	configCheckCmd.Flags().DurationVar(&checkTimeout, "timeout", 10*time.Second, "provider check timeout")
}
