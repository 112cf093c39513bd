package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anvanster/vectrust/pkg/core"
	"github.com/anvanster/vectrust/pkg/vecmath"
	"github.com/anvanster/vectrust/pkg/vectrust"
)

var (
	indexDir  string
	indexName string
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "vectrust",
	Short: "CLI for a local vectrust index",
	Long:  `A command-line driver for creating, inspecting, and querying a vectrust index directory.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new index in the target directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		deleteIfExists, _ := cmd.Flags().GetBool("force")
		metric, _ := cmd.Flags().GetString("metric")
		configPath, _ := cmd.Flags().GetString("config")
		saveConfigPath, _ := cmd.Flags().GetString("save-config")

		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		cfg := core.DefaultCreateIndexConfig()
		if configPath != "" {
			cfg, err = core.LoadConfigFile(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
		}
		cfg.DeleteIfExists = deleteIfExists
		if metric != "" {
			cfg.DistanceMetric = core.DistanceMetric(metric)
		}

		if err := ix.CreateIndex(cfg); err != nil {
			return fmt.Errorf("create index: %w", err)
		}

		if saveConfigPath != "" {
			if err := core.SaveConfigFile(saveConfigPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Printf("config written to %s\n", saveConfigPath)
		}

		fmt.Printf("index created at %s\n", indexDir)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert one item",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		metadata := json.RawMessage("{}")
		if metadataStr != "" {
			metadata = json.RawMessage(metadataStr)
		}

		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		item, err := ix.InsertItem(core.Item{Vector: vector, Metadata: metadata})
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}

		fmt.Printf("inserted %s\n", item.ID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get an item by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		item, err := ix.GetItem(id)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if item == nil {
			return fmt.Errorf("item %s not found", id)
		}

		printItem(*item)
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query for the nearest items to a vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		topK, _ := cmd.Flags().GetInt("top-k")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		results, err := ix.QueryItems(vector, &topK, nil)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		if jsonOut {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("found %d results:\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. %s (score: %.4f)\n", i+1, r.Item.ID, r.Score)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Display index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		stats, err := ix.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}

		if jsonOut {
			data, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Println("index statistics:")
		fmt.Printf("  items: %d\n", stats.Items)
		fmt.Printf("  size: %.2f MB\n", float64(stats.SizeBytes)/(1024*1024))
		if stats.Dimensions != nil {
			fmt.Printf("  dimensions: %d\n", *stats.Dimensions)
		}
		fmt.Printf("  distance metric: %s\n", stats.DistanceMetric)
		return nil
	},
}

// verifyCmd does a full list pass and reports any item whose vector fails
// the same finiteness check InsertItem enforces on write, catching
// corruption that predates this revision's validation.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Scan every item for vector corruption",
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := vectrust.Open(indexDir, indexName)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}

		items, err := ix.ListItems(nil)
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}

		bad := 0
		for _, it := range items {
			if !isFinite(it.Vector) {
				bad++
				fmt.Printf("corrupt vector: %s\n", it.ID)
			}
		}

		fmt.Printf("checked %d items, %d corrupt\n", len(items), bad)
		return nil
	},
}

func isFinite(vector []float32) bool {
	return vecmath.IsValid(vector)
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("vector is required")
	}
	parts := strings.Split(s, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", part, err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

func printItem(item core.Item) {
	fmt.Printf("id: %s\n", item.ID)
	fmt.Printf("version: %d\n", item.Version)
	fmt.Printf("created: %s\n", item.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("updated: %s\n", item.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Printf("metadata: %s\n", string(item.Metadata))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&indexDir, "dir", "d", ".", "index directory")
	rootCmd.PersistentFlags().StringVarP(&indexName, "name", "n", "index.json", "legacy index file name")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	createCmd.Flags().Bool("force", false, "delete any existing index first")
	createCmd.Flags().String("metric", "", "distance metric (cosine, euclidean, dotProduct)")
	createCmd.Flags().String("config", "", "path to a vectrust.yaml config file")
	createCmd.Flags().String("save-config", "", "write the resolved config to this path as vectrust.yaml")

	insertCmd.Flags().String("vector", "", "vector values (comma-separated)")
	insertCmd.Flags().String("metadata", "", "metadata as a JSON object")
	insertCmd.MarkFlagRequired("vector")

	queryCmd.Flags().String("vector", "", "query vector (comma-separated)")
	queryCmd.Flags().Int("top-k", 10, "number of results")
	queryCmd.MarkFlagRequired("vector")

	rootCmd.AddCommand(createCmd, insertCmd, getCmd, queryCmd, statsCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
