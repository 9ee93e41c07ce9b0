package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfateev/temporal-agent-loop/internal/cli"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

var profileCmd = &cobra.Command{
	Use:   "profile [model]",
	Short: "Show the resolved profile and context budget of a model",
	Long: `Show the context window, output limit and prompt additions that apply
to a model, and the token budget the context manager works with.

Without an argument the configured model is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProfile,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to the configured API keys",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

var (
	profileProvider string
	modelsProvider  string
)

func init() {
	profileCmd.Flags().StringVar(&profileProvider, "provider", "", "Model provider (default: detected from the model name)")
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "Only list this provider's models")
}

func runModels(cmd *cobra.Command, _ []string) error {
	var providers []string
	if modelsProvider != "" {
		providers = append(providers, modelsProvider)
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), listModelsTimeout)
	defer cancel()

	found, err := llm.ListModels(ctx, providers...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if len(found) == 0 {
		return fmt.Errorf("no models listed; set ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY")
	}

	registry := models.NewDefaultRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tNAME")
	for _, m := range found {
		p := registry.Resolve(m.Provider, m.ID)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Provider, m.ID, p.ContextWindow, m.DisplayName)
	}
	return w.Flush()
}

func runProfile(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var model string
	if len(args) == 1 {
		model = args[0]
	}
	if err := applyModelFlags(cfg, profileProvider, model); err != nil {
		return err
	}

	mc := cfg.ModelConfig()
	registry := models.NewDefaultRegistry()
	p := registry.Resolve(mc.Provider, mc.Model)
	budget := cfg.ContextConfigFor(registry, mc)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "model\t%s/%s\n", mc.Provider, mc.Model)
	if detected := cli.DetectProvider(mc.Model); detected != "" && detected != mc.Provider {
		fmt.Fprintf(w, "note\tname suggests provider %s\n", detected)
	}
	fmt.Fprintf(w, "context window\t%d\n", p.ContextWindow)
	fmt.Fprintf(w, "max output tokens\t%d\n", p.MaxTokens)
	fmt.Fprintf(w, "available\t%d (reserved %d)\n", budget.Available(), budget.ReservedOutputTokens)
	fmt.Fprintf(w, "prune at\t%d tokens (%.0f%%)\n", threshold(budget.Available(), budget.PruneThreshold), budget.PruneThreshold*100)
	fmt.Fprintf(w, "compact at\t%d tokens (%.0f%%)\n", threshold(budget.Available(), budget.CompactThreshold), budget.CompactThreshold*100)
	fmt.Fprintf(w, "project docs\t%s\n", strings.Join(p.ProjectDocNames, ", "))
	if p.PromptSuffix != "" {
		fmt.Fprintf(w, "prompt suffix\t%s\n", p.PromptSuffix)
	}
	return w.Flush()
}

const listModelsTimeout = 30 * time.Second

func threshold(available int, rate float64) int {
	return int(float64(available) * rate)
}
