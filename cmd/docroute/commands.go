package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karsov/docroute/internal/agents"
	"github.com/karsov/docroute/internal/classify"
	"github.com/karsov/docroute/internal/config"
	"github.com/karsov/docroute/internal/pipeline"
	"github.com/karsov/docroute/internal/report"
	"github.com/karsov/docroute/internal/storage"
)

// loadConfig applies the shared --data-dir and --output-dir overrides on
// top of the normal config sources.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if outputDir, _ := cmd.Flags().GetString("output-dir"); outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	return cfg, nil
}

func openStore(cfg config.Config) (*storage.Store, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func buildPipeline(store *storage.Store, outputDir string) *pipeline.Pipeline {
	classifier := classify.New(store, nil)
	handlers := []agents.Handler{
		agents.NewJSONAgent(store, nil),
		agents.NewEmailAgent(store),
	}
	return pipeline.New(store, classifier, handlers, outputDir)
}

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one document or a directory of documents",
	Long: `Process one document or a directory of documents.

Examples:
  docroute process --input ./samples/invoice.json
  docroute process --batch ./samples --output-dir ./out`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		batch, _ := cmd.Flags().GetString("batch")

		if input == "" && batch == "" {
			return fmt.Errorf("one of --input or --batch is required")
		}
		if input != "" && batch != "" {
			return fmt.Errorf("--input and --batch are mutually exclusive")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		p := buildPipeline(store, cfg.Output.Dir)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		var results []pipeline.Result
		if input != "" {
			results = []pipeline.Result{p.ProcessDocument(cmd.Context(), input)}
		} else {
			results = p.ProcessBatch(cmd.Context(), batch)
		}

		failed := 0
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return err
			}
			if r.Status != pipeline.StatusSuccess {
				failed++
				printError("processing failed: %s", r.Message)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(results))
		}
		printSuccess("Processed %d document(s)", len(results))
		return nil
	},
}

func init() {
	processCmd.Flags().String("input", "", "path of a single document to process")
	processCmd.Flags().String("batch", "", "directory of documents to process")
	processCmd.Flags().String("data-dir", "", "override storage data directory")
	processCmd.Flags().String("output-dir", "", "override export output directory")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize processed threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err := report.FromStore(store)
		if err != nil {
			return fmt.Errorf("building report: %w", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		return report.WriteMarkdown(os.Stdout, summary)
	},
}

func init() {
	reportCmd.Flags().Bool("json", false, "emit the summary as JSON")
	reportCmd.Flags().String("data-dir", "", "override storage data directory")
	reportCmd.Flags().String("output-dir", "", "override export output directory")
}

// --- threads ---

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect processing threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		threads, err := store.ListThreads(limit)
		if err != nil {
			return fmt.Errorf("listing threads: %w", err)
		}
		if len(threads) == 0 {
			fmt.Println("No threads found.")
			return nil
		}

		for _, th := range threads {
			fmt.Printf("%s  %s  %-7s %-10s %s\n",
				colorize(colorCyan, th.ID[:8]),
				th.CreatedAt.Format("2006-01-02 15:04:05"),
				th.Format,
				th.Intent,
				th.Status,
			)
		}
		return nil
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a thread with its fields and routing history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		snapshot, err := store.GetThread(args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	},
}

func init() {
	threadsListCmd.Flags().Int("limit", 20, "maximum number of threads to list")
	for _, c := range []*cobra.Command{threadsListCmd, threadsShowCmd} {
		c.Flags().String("data-dir", "", "override storage data directory")
		c.Flags().String("output-dir", "", "override export output directory")
	}
	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all threads as a JSON snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		path, err := store.ExportAll(out)
		if err != nil {
			return fmt.Errorf("exporting threads: %w", err)
		}

		printSuccess("Exported threads to %s", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "output/logs.json", "destination file for the export")
	exportCmd.Flags().String("data-dir", "", "override storage data directory")
	exportCmd.Flags().String("output-dir", "", "override export output directory")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
