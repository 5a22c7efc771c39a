package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/molt/pkg/delta"
)

// Delta commands (host-side release tooling)
var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Create and apply binary deltas",
}

var deltaCreateCmd = &cobra.Command{
	Use:   "create <old> <new> <output>",
	Short: "Generate a delta transforming old into new",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		blockSize, _ := cmd.Flags().GetInt("block-size")
		minSavings, _ := cmd.Flags().GetFloat64("min-savings")

		oldPath, newPath, outPath := args[0], args[1], args[2]

		n, err := delta.CreateFile(oldPath, newPath, outPath, blockSize)
		if err != nil {
			return err
		}

		newStat, err := os.Stat(newPath)
		if err != nil {
			return err
		}
		savings := 1 - float64(n)/float64(newStat.Size())
		fmt.Printf("Delta: %d bytes (%.0f%% smaller than full file)\n", n, savings*100)

		if minSavings > 0 && savings < minSavings {
			os.Remove(outPath)
			return fmt.Errorf("delta saves only %.0f%%, below the %.0f%% threshold",
				savings*100, minSavings*100)
		}
		return nil
	},
}

var deltaApplyCmd = &cobra.Command{
	Use:   "apply <old> <delta> <output>",
	Short: "Apply a delta file against an old file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		expected, _ := cmd.Flags().GetString("sha256")
		chunk, _ := cmd.Flags().GetInt("chunk")

		digest, err := delta.ApplyFile(args[0], args[1], args[2], delta.Options{
			ExpectedSHA256: expected,
			ChunkSize:      chunk,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Applied, output sha256 %s\n", digest)
		return nil
	},
}

var deltaEstimateCmd = &cobra.Command{
	Use:   "estimate <old> <new>",
	Short: "Estimate delta size without generating it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldStat, err := os.Stat(args[0])
		if err != nil {
			return err
		}
		newStat, err := os.Stat(args[1])
		if err != nil {
			return err
		}
		est := delta.EstimateSize(oldStat.Size(), newStat.Size(), 0)
		fmt.Printf("Estimated delta: ~%d bytes (full file: %d)\n", est, newStat.Size())
		return nil
	},
}

func init() {
	deltaCreateCmd.Flags().Int("block-size", delta.DefaultBlockSize, "Block size for match detection")
	deltaCreateCmd.Flags().Float64("min-savings", 0.3, "Fail unless the delta saves at least this fraction")
	deltaApplyCmd.Flags().String("sha256", "", "Expected SHA-256 of the output")
	deltaApplyCmd.Flags().Int("chunk", 512, "Read/write chunk size")

	deltaCmd.AddCommand(deltaCreateCmd)
	deltaCmd.AddCommand(deltaApplyCmd)
	deltaCmd.AddCommand(deltaEstimateCmd)
}
