package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Napageneral/journai/internal/config"
	"github.com/Napageneral/journai/internal/db"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "journai",
		Short: "Journaling companion with emotion analysis",
		Long: `JournAI keeps a daily journal, chats back through a local or hosted
language model, and turns entries into valence/arousal scores, Plutchik
emotions and dyads, mood quizzes and activity ratings.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("journai %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(histogramCmd())
	rootCmd.AddCommand(moodHistogramCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize journai config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			type Result struct {
				OK        bool   `json:"ok"`
				ConfigDir string `json:"config_dir"`
				DataDir   string `json:"data_dir"`
				DBPath    string `json:"db_path"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				return err
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}

			dbPath := cfg.Database.Path
			if dbPath == "" {
				if dbPath, err = db.GetPath(); err != nil {
					return err
				}
			}
			conn, err := db.Open(cfg.Database.Driver, dbPath)
			if err != nil {
				return err
			}
			conn.Close()

			result := Result{OK: true, ConfigDir: configDir, DataDir: dataDir, DBPath: dbPath}
			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Println("JournAI initialized")
				fmt.Printf("  Config: %s\n", result.ConfigDir)
				fmt.Printf("  Data:   %s\n", result.DataDir)
				fmt.Printf("  DB:     %s\n", result.DBPath)
			}
			return nil
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
