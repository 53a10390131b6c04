// Package main implements the mtlgen CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mtlforge/mtlgen/internal/exprlang"
	"github.com/mtlforge/mtlgen/internal/mtlinterp"
	"github.com/mtlforge/mtlgen/internal/mtlctx"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtllog"
	"github.com/mtlforge/mtlgen/internal/mtlparse"
	"github.com/mtlforge/mtlgen/internal/modelio"
	"github.com/mtlforge/mtlgen/internal/outstrategy"
	"github.com/mtlforge/mtlgen/internal/protectedarea"
	"github.com/mtlforge/mtlgen/internal/tracemap"
	"github.com/mtlforge/mtlgen/pkg/config"
	"github.com/mtlforge/mtlgen/pkg/ui"
)

var version = "0.1.0-alpha"

func main() {
	rootCmd := &cobra.Command{
		Use:     "mtlgen",
		Short:   "mtlgen - a model-to-text template generator",
		Version: version,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mtlgen version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("mtlgen v" + version)
		},
	}
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [module.mtl]",
		Short: "Parse a module and report errors without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			mod, err := mtlparse.Parse(string(src))
			if err != nil {
				printParseError(args[0], string(src), err)
				return err
			}
			fmt.Printf("ok: %d template(s), %d quer(ies), %d macro(s)\n",
				len(mod.Templates), len(mod.Queries), len(mod.Macros))
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [module.mtl]",
		Short: "Parse a module and report its main template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			mod, err := mtlparse.Parse(string(src))
			if err != nil {
				printParseError(args[0], string(src), err)
				return err
			}
			if tmpl, ok := mod.MainTemplate(); ok {
				fmt.Printf("main template: %s\n", tmpl.Name)
			} else {
				fmt.Println("no main template found")
			}
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		configPath   string
		templateName string
		modelFlags   []string
		sourcemap    bool
	)

	cmd := &cobra.Command{
		Use:   "generate [module.mtl]",
		Short: "Execute a module's main template and write its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(args[0], configPath, templateName, modelFlags, sourcemap)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mtlgen.toml", "Path to mtlgen.toml")
	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template to run (default: module's main template)")
	cmd.Flags().StringArrayVarP(&modelFlags, "model", "m", nil, "alias=path model binding, repeatable")
	cmd.Flags().BoolVar(&sourcemap, "sourcemap", false, "Write a .map source-map file alongside each generated output")

	return cmd
}

func runGenerate(modulePath, configPath, templateName string, modelFlags []string, writeSourcemap bool) error {
	out := ui.NewRunOutput()
	out.PrintHeader(version)

	cfg, err := config.Load(configPath)
	if err != nil {
		out.PrintError(err.Error())
		return err
	}

	logger := mtllog.New(cfg.Generation.Debug)
	defer logger.Sync()
	runID := uuid.NewString()
	logger.Debugf("run %s: loaded config from %s", runID, configPath)

	out.PrintModuleStart(modulePath, displayTemplateName(templateName, cfg))

	src, err := os.ReadFile(modulePath)
	if err != nil {
		out.PrintError(err.Error())
		return err
	}

	parseStart := time.Now()
	mod, err := mtlparse.Parse(string(src))
	parseElapsed := time.Since(parseStart)
	if err != nil {
		out.PrintStep(ui.Step{Name: "Parse", Status: ui.StepError, Duration: parseElapsed})
		printParseError(modulePath, string(src), err)
		return err
	}
	out.PrintStep(ui.Step{Name: "Parse", Status: ui.StepSuccess, Duration: parseElapsed})

	loader := modelio.New()
	for alias, m := range cfg.Models {
		logger.Debugf("loading model %s from %s", alias, m.Path)
		if err := loader.LoadFile(alias, m.Path); err != nil {
			out.PrintStep(ui.Step{Name: "Load models", Status: ui.StepError})
			return fmt.Errorf("loading model %s: %w", alias, err)
		}
	}
	for _, binding := range modelFlags {
		alias, path, ok := splitModelFlag(binding)
		if !ok {
			return fmt.Errorf("invalid --model value %q, expected alias=path", binding)
		}
		if err := loader.LoadFile(alias, path); err != nil {
			return fmt.Errorf("loading model %s: %w", alias, err)
		}
	}
	if len(cfg.Models) > 0 || len(modelFlags) > 0 {
		out.PrintStep(ui.Step{Name: "Load models", Status: ui.StepSuccess})
	}

	protected := protectedarea.New()
	strategy := outstrategy.NewFileSystem()
	ctx := mtlctx.New(protected, strategy, loader, cfg.Generation.IndentUnit)
	interp := mtlinterp.New(mod, exprlang.New(), ctx)

	effectiveTemplate := templateName
	if effectiveTemplate == "" {
		effectiveTemplate = cfg.Generation.MainTemplate
	}

	genStart := time.Now()
	stats, err := interp.Generate(effectiveTemplate, nil)
	genElapsed := time.Since(genStart)
	if err != nil {
		out.PrintStep(ui.Step{Name: "Generate", Status: ui.StepError, Duration: genElapsed})
		out.PrintSummary(false, stats.TemplatesExecuted, err.Error())
		return err
	}
	out.PrintStep(ui.Step{Name: "Generate", Status: ui.StepSuccess, Duration: genElapsed})
	logger.Infof("run %s: generated %d template(s)", runID, stats.TemplatesExecuted)

	if writeSourcemap || cfg.Generation.TraceLinks {
		if err := writeSourcemaps(modulePath, ctx.Traces(), writeSourcemap); err != nil {
			out.PrintWarning(fmt.Sprintf("sourcemap: %v", err))
		}
	}

	out.PrintSummary(true, stats.TemplatesExecuted, "")
	return nil
}

// writeSourcemaps groups recorded trace links by output file and, when
// persist is true, writes a "<output>.map" source-map-v3 document next to
// each one (spec §9 Open Question (a)).
func writeSourcemaps(modulePath string, links []mtlctx.TraceLink, persist bool) error {
	if !persist {
		return nil
	}
	byOutput := map[string]bool{}
	for _, l := range links {
		byOutput[l.OutputPath] = true
	}
	for output := range byOutput {
		if output == "" {
			continue
		}
		doc, err := tracemap.Build(modulePath, output, links)
		if err != nil {
			return err
		}
		data, err := tracemap.Marshal(doc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(output+".map", data, 0o644); err != nil {
			return fmt.Errorf("writing %s.map: %w", output, err)
		}
	}
	return nil
}

func displayTemplateName(templateName string, cfg *config.Config) string {
	if templateName != "" {
		return templateName
	}
	if cfg.Generation.MainTemplate != "" {
		return cfg.Generation.MainTemplate
	}
	return "<main>"
}

func splitModelFlag(s string) (alias, path string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func printParseError(path, src string, err error) {
	if pe, ok := err.(*mtlerrors.ParseError); ok {
		snippet := mtlerrors.NewSnippet(filepath.Base(path), src, pe.Line, pe.Column)
		fmt.Fprintln(os.Stderr, snippet.Render())
	}
	fmt.Fprintln(os.Stderr, err.Error())
}
