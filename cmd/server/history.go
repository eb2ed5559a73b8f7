package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/chadiek/mock-interview/internal/infra/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history USER",
	Short: "List a user's analyzed sessions from the local SQLite store",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "maximum sessions to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _ := loadConfig()
	store, err := storage.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListByUser(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No analyzed sessions yet."))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), historyTable(recs))
	return nil
}

// historyTable renders recs newest first, as returned by the store.
func historyTable(recs []storage.Record) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return labelStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("FINISHED", "ROLE", "LEVEL", "SCORE")
	for _, r := range recs {
		t.Row(r.FinishedAt.Format("2006-01-02 15:04"), r.Role, strconv.Itoa(r.Difficulty), strconv.Itoa(r.Report.Overall))
	}
	return t.String()
}
