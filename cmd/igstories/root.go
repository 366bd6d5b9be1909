package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igstories/pkg/config"
	"igstories/pkg/instagram"
	"igstories/pkg/logger"
	"igstories/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	colorMode  string
	quiet      bool
	verbose    bool

	// Set by the root pre-run
	cfg     *config.Config
	log     logger.Logger
	printer *ui.Printer
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igstories",
	Short: "Fetch and download the active stories of public accounts",
	Long: `igstories resolves the currently active stories of an account through a
chain of acquisition strategies and downloads them.

Strategies are tried in order until one succeeds:
  - Browser: a headless browser drives a public story viewer
  - Session: an external scraper runs with your saved login session
  - API:     the platform's public web API
  - Scrape:  the public profile page

Run 'igstories serve' to expose the engine over HTTP with rate limiting and
captcha escalation.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mode, err := ui.ParseColorMode(colorMode)
		if err != nil {
			return err
		}
		printer = ui.NewPrinter(mode, quiet)

		flags := map[string]interface{}{}
		for _, name := range []string{"output", "log-level", "addr", "strategies"} {
			if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
				flags[name] = f.Value.String()
			}
		}
		if f := cmd.Flags().Lookup("concurrent"); f != nil && f.Changed {
			n, _ := cmd.Flags().GetInt("concurrent")
			flags["concurrent"] = n
		}
		if f := cmd.Flags().Lookup("headful"); f != nil && f.Changed {
			flags["headful"], _ = cmd.Flags().GetBool("headful")
		}

		cfg, err = config.Load(configFile, flags)
		if err != nil {
			return err
		}

		// Interactive commands keep the terminal for the printer
		// unless asked for logs.
		if !verbose && !cmd.Flags().Changed("log-level") && cmd.Name() != "serve" {
			cfg.Logging.Level = "warn"
		}
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}
		log = logger.GetLogger()
		return nil
	},
}

// parseHandle accepts a username, @username or profile URL
func parseHandle(arg string) (string, error) {
	handle := instagram.SanitizeHandle(arg)
	if !instagram.IsValidHandle(handle) {
		return "", fmt.Errorf("invalid username %q", arg)
	}
	return handle, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if printer == nil {
			printer = ui.NewPrinter(ui.ColorAuto, false)
		}
		printer.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.igstories.yaml or ~/.config/igstories/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output (auto, always, never)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show engine logs")
	rootCmd.PersistentFlags().String("strategies", "", "comma-separated strategy order (browser,session,api,scrape)")
	rootCmd.PersistentFlags().Bool("headful", false, "show the browser window of the browser strategy")

	rootCmd.SetVersionTemplate(`igstories {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
