package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfateev/temporal-agent-loop/internal/config"
	"github.com/mfateev/temporal-agent-loop/internal/contextmgr"
	"github.com/mfateev/temporal-agent-loop/internal/history"
)

var (
	historyAll        bool
	historyNoColor    bool
	historyNoMarkdown bool
)

var historyCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "Show a session's history as the model sees it",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	historyCmd.Flags().BoolVarP(&historyAll, "all", "a", false, "Include messages replaced by summaries and truncation")
	historyCmd.Flags().BoolVar(&historyNoColor, "no-color", false, "Disable colored output")
	historyCmd.Flags().BoolVar(&historyNoMarkdown, "no-markdown", false, "Print text without markdown rendering")
}

func openStore() (history.Store, *config.File, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := history.Open(cfg.SessionStore.Kind, cfg.SessionStore.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	msgs, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	shown := msgs
	if !historyAll {
		shown = contextmgr.EffectiveHistory(msgs, cfg.Context.MessagesToKeep)
	}
	fmt.Print(newRenderer(historyNoColor, historyNoMarkdown).RenderMessages(shown))
	if hidden := len(msgs) - len(shown); hidden > 0 {
		fmt.Fprintf(os.Stderr, "%d stored messages hidden; use --all to show them\n", hidden)
	}
	return nil
}

func runSessions(cmd *cobra.Command, _ []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tMESSAGES\tUPDATED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n", info.ID, info.Messages, info.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
