package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/molt/pkg/config"
	"github.com/cuemby/molt/pkg/engine"
	"github.com/cuemby/molt/pkg/history"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/metrics"
	"github.com/cuemby/molt/pkg/swap"
	"github.com/cuemby/molt/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "molt",
	Short: "Molt - Crash-safe OTA updates for edge devices",
	Long: `Molt pulls released artifacts from a version-controlled repository
host and installs them with crash-safe semantics: streamed verification
into a staging area, an atomic all-or-nothing swap with rollback, and a
persistent installed-version record that survives power loss.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Molt version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("root", ".", "Device root directory (the live tree)")
	rootCmd.PersistentFlags().String("config", "ota.json", "Config file (JSON with comments, or YAML by extension)")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	// Add subcommands
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(recoverCmd)
	rootCmd.AddCommand(deltaCmd)
	rootCmd.AddCommand(manifestCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	root, _ := cmd.Flags().GetString("root")
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	return &cfg, root, nil
}

// Update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one update attempt",
	Long: `Run one complete update attempt: boot recovery, resource and
identity gates, target resolution, staging, atomic swap, and the
configured reset. The device keeps its prior version on any failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, root, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		noHistory, _ := cmd.Flags().GetBool("no-history")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorf("Metrics listener failed", err)
				}
			}()
		}

		opts := engine.Options{}
		if !noHistory {
			hist, err := history.Open(root)
			if err != nil {
				log.Errorf("History store unavailable, continuing without it", err)
			} else {
				defer hist.Close()
				opts.History = hist
			}
		}

		eng, err := engine.New(cfg, root, opts)
		if err != nil {
			return err
		}

		outcome, err := eng.Run(context.Background())
		switch outcome {
		case types.OutcomeUpdated:
			fmt.Println("Update installed")
		case types.OutcomeNoChange:
			fmt.Println("No update required")
		default:
			fmt.Printf("Update failed (%s): %v\n", outcome, err)
		}
		if err != nil {
			return err
		}
		return nil
	},
}

// Status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed version and recent attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")

		rec, err := swap.ReadVersion(root)
		if err != nil {
			fmt.Printf("Version record: unreadable (%v)\n", err)
		} else if rec == nil {
			fmt.Println("Version record: absent")
		} else {
			fmt.Printf("Installed: %s (%s)\n", rec.Ref, rec.Commit)
		}

		hist, err := history.Open(root)
		if err != nil {
			return nil // no history store is fine
		}
		defer hist.Close()

		attempts, err := hist.Attempts()
		if err != nil || len(attempts) == 0 {
			return nil
		}
		fmt.Println("Recent attempts:")
		start := 0
		if len(attempts) > 10 {
			start = len(attempts) - 10
		}
		for _, a := range attempts[start:] {
			fmt.Printf("  %s  %-18s %s -> %s\n",
				a.StartedAt.Format("2006-01-02 15:04:05"), a.Outcome, a.Channel, a.TargetRef)
		}
		return nil
	},
}

// Recover command
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run boot recovery without attempting an update",
	Long: `Restore any interrupted swap from the backup directory and clear
staging. This is exactly what runs at the start of every update; the
command exists for manual intervention and scripted health checks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, root, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if _, err := swap.New(root, cfg.StageDir, cfg.BackupDir); err != nil {
			return err
		}
		fmt.Println("Recovery complete")
		return nil
	},
}

func init() {
	updateCmd.Flags().Bool("no-history", false, "Skip recording to the history store")
	updateCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
}
