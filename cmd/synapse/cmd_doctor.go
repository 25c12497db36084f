package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/synapsedb/synapse/internal/database"
	"github.com/synapsedb/synapse/internal/dependencies"
	"github.com/synapsedb/synapse/pkg/config"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Comprehensive system check",
	Long:  `Run a comprehensive system check to verify all components are working correctly.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDoctor()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor() {
	fmt.Println("Synapse System Check")
	fmt.Println("====================")
	fmt.Println()

	allOk := true

	fmt.Print("Configuration... ")
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		allOk = false
	} else {
		fmt.Println("OK")
	}

	fmt.Print("Database... ")
	if cfg != nil {
		if _, err := os.Stat(cfg.Database.Path); os.IsNotExist(err) {
			fmt.Println("NOT INITIALIZED (will be created on first use)")
		} else {
			db, err := database.Open(cfg.Database.Path, cfg.Embedding.Dimension)
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				allOk = false
			} else {
				stats, err := db.GetStats()
				if err != nil {
					fmt.Printf("ERROR: %v\n", err)
					allOk = false
				} else {
					fmt.Printf("OK (%d documents, %d memories)\n", stats.DocumentCount, stats.MemoryCount)
				}
				db.Close()
			}
		}
		fmt.Printf("  Path: %s\n", cfg.Database.Path)
	}
	fmt.Println()

	hasWarnings := false
	if cfg != nil {
		depResult := dependencies.Check(cfg)
		fmt.Print(dependencies.FormatDoctorReport(depResult, cfg))
		if cfg.Qdrant.Enabled && depResult.Qdrant.Status != dependencies.StatusAvailable {
			hasWarnings = true
		}
		if cfg.Ollama.Enabled && depResult.Ollama.Status != dependencies.StatusAvailable {
			hasWarnings = true
		}
	}

	fmt.Println()
	switch {
	case allOk && !hasWarnings:
		fmt.Println("All systems operational.")
	case allOk && hasWarnings:
		fmt.Println("Core systems operational; optional backends unavailable (brute-force vector fallback and/or no embedder).")
	default:
		fmt.Println("Issues detected, see above.")
		os.Exit(1)
	}

	if cfg != nil {
		fmt.Println()
		fmt.Println("Configuration:")
		fmt.Printf("  Config Dir: %s\n", config.ConfigPath())
		fmt.Printf("  REST API: %s:%d (enabled: %v)\n", cfg.RestAPI.Host, cfg.RestAPI.Port, cfg.RestAPI.Enabled)
		fmt.Printf("  Vector store profile: %s\n", cfg.VectorStore.Profile)
		fmt.Printf("  Consolidation: enabled=%v, Retention: enabled=%v\n", cfg.Consolidation.Enabled, cfg.Retention.Enabled)
	}
}
