package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"igstories/pkg/ui"
)

var (
	storiesRefresh bool
	storiesJSON    bool
)

// storiesCmd represents the stories command
var storiesCmd = &cobra.Command{
	Use:   "stories <username>",
	Short: "List the active stories of an account",
	Long: `List the active stories of an account.

The strategy chain is run until one strategy answers. Results are cached for
cache.stories_ttl (two hours by default); use --refresh to bypass the cache.`,
	Example: `  igstories stories natgeo
  igstories stories natgeo --json
  igstories stories @natgeo --refresh --strategies api,scrape`,
	Args: cobra.ExactArgs(1),
	RunE: runStories,
}

func init() {
	rootCmd.AddCommand(storiesCmd)
	storiesCmd.Flags().BoolVar(&storiesRefresh, "refresh", false, "bypass the stories cache")
	storiesCmd.Flags().BoolVar(&storiesJSON, "json", false, "print the result as JSON")
}

func runStories(cmd *cobra.Command, args []string) error {
	handle, err := parseHandle(args[0])
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}

	start := time.Now()
	res := eng.orch.ResolveContent(cmd.Context(), handle, storiesRefresh)

	if storiesJSON {
		enc := json.NewEncoder(printer.Out())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.Success {
			return res.Err
		}
		return nil
	}

	if !res.Success {
		return res.Err
	}

	if len(res.Items) == 0 {
		printer.Info("@%s has no active stories", handle)
		return nil
	}

	printer.Header("Stories of @" + handle)
	if res.Account != nil && res.Account.DisplayName != "" {
		printer.KeyValue("Name", res.Account.DisplayName)
	}
	printer.KeyValue("Source", res.Source)
	printer.KeyValue("Resolved in", ui.FormatDuration(time.Since(start)))
	printer.Print("")

	return ui.StoriesTable(printer, res.Items).Render()
}
