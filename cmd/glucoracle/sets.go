package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "Inspect stored metric sets",
}

var setsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored metric sets, newest first",
	Long: `List metric sets saved with "metrics --store".

Examples:
  glucoracle sets list
  glucoracle sets list --subject subj_001`,
	Args: cobra.NoArgs,
	RunE: runSetsList,
}

var setsSubject string

func init() {
	rootCmd.AddCommand(setsCmd)
	setsCmd.AddCommand(setsListCmd)
	setsListCmd.Flags().StringVar(&setsSubject, "subject", "", "Only list sets for this subject")
}

func runSetsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(store)

	sets, err := store.ListMetricSets(cmd.Context(), setsSubject)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sets); err != nil {
		return fmt.Errorf("failed to write metric sets: %w", err)
	}
	return nil
}
