// Package main provides the texttemplar command-line interface.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/nikitaxru/texttemplar"
)

// Version information (set at build time).
var Version = "0.1.0"

var cfgFile string

// renderConfig is the merged CLI configuration. Precedence, highest to
// lowest: flags > TEXTTEMPLAR_* env vars > config file > defaults.
type renderConfig struct {
	Strict   bool   `koanf:"strict"`
	MaxDepth int    `koanf:"max_depth"`
	Legacy   bool   `koanf:"legacy"`
	Out      string `koanf:"out"`
	Verbose  bool   `koanf:"verbose"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "texttemplar",
		Short: "texttemplar - line-oriented text template engine",
		Long: `texttemplar renders templates written with TMPL_VAR, TMPL_LOOP and
TMPL_IF directives against parameter values supplied as YAML or flags.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(newRenderCmd())
	return rootCmd
}

func loadConfig(flags *pflag.FlagSet) (*renderConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"strict":    true,
		"max_depth": 100,
		"legacy":    false,
		"out":       "",
		"verbose":   false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), koanfyaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider("TEXTTEMPLAR_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "TEXTTEMPLAR_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg renderConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func newRenderCmd() *cobra.Command {
	var (
		paramsFile string
		setValues  []string
	)

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			var logger *slog.Logger
			if cfg.Verbose {
				logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}

			opts := []texttemplar.Option{
				texttemplar.WithConfig(texttemplar.Config{Strict: cfg.Strict, MaxDepth: cfg.MaxDepth}),
				texttemplar.WithLogger(logger),
			}
			if cfg.Legacy {
				opts = append(opts, texttemplar.WithLegacyVars())
			}

			loader := texttemplar.NewLoader(
				texttemplar.WithParseOptions(opts...),
				texttemplar.WithLoaderLogger(logger),
			)
			doc, err := loader.Load(args[0])
			if err != nil {
				return err
			}

			if paramsFile != "" {
				if err := applyParamsFile(doc, paramsFile); err != nil {
					return err
				}
			}
			for _, kv := range setValues {
				name, value, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --set value %q, expected name=value", kv)
				}
				if err := doc.Set(name, value); err != nil {
					return err
				}
			}

			out, err := doc.Render()
			if err != nil {
				return err
			}
			if cfg.Out != "" {
				return os.WriteFile(cfg.Out, []byte(out), 0o644)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&paramsFile, "params", "p", "", "YAML file with parameter values")
	cmd.Flags().StringArrayVar(&setValues, "set", nil, "scalar parameter override (name=value, repeatable)")
	cmd.Flags().Bool("strict", true, "fail on unknown parameter names")
	cmd.Flags().Int("max-depth", 100, "maximum block nesting depth")
	cmd.Flags().Bool("legacy", false, "expand legacy %NAME% placeholders before parsing")
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolP("verbose", "v", false, "debug logging to stderr")
	return cmd
}

func applyParamsFile(doc *texttemplar.Document, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read params file: %w", err)
	}
	var params map[string]any
	if err := yamlv3.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("cannot parse params file %s: %w", path, err)
	}
	for name, value := range params {
		if err := doc.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}
