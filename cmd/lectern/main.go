package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var version = "dev"

// noColor disables ANSI colour in CLI output.
var noColor bool

var rootCmd = &cobra.Command{
	Use:           "lectern",
	Short:         "Generate short animated explainer videos from a topic",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(generateCmd, jobsCmd, videosCmd, runsCmd, runCmd, cacheCmd, configCmd)
}

func main() {
	// A missing .env is normal; anything it sets is overridden by the real environment.
	_ = godotenv.Load()

	if os.Getenv("NO_COLOR") != "" || !isTerminal(os.Stderr) {
		noColor = true
	}

	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printVersion() {
	fmt.Fprintf(os.Stderr, "lectern version %s\n", version)
}
