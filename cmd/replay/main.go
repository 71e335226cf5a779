package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"sudooom.im.sync/internal/replay"
)

var (
	scriptFile string
	pretty     bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a YAML event script into a sync engine",
	Long: `replay builds a sync engine with in-memory collaborators and a virtual clock,
applies the push events and UI intents of a YAML script in order, checks the
expectations attached to each step and prints the final snapshot as JSON.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&scriptFile, "file", "f", "", "event script (YAML)")
	rootCmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine decisions to stderr")
	rootCmd.MarkFlagRequired("file")
}

func run(stdout, stderr io.Writer) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	script, err := replay.Load(scriptFile)
	if err != nil {
		return err
	}
	runner, err := replay.NewRunner(script)
	if err != nil {
		return err
	}
	result, err := runner.Run()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(result)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
