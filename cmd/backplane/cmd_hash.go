package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"backplane/internal/contract"
	"backplane/internal/receipt"
)

var hashVerify bool

// hashCmd recomputes or verifies a receipt hash from a JSON file.
var hashCmd = &cobra.Command{
	Use:   "hash [receipt.json]",
	Short: "Compute or verify a receipt's SHA-256 hash",
	Long: `Reads a receipt from a JSON file and prints its canonical SHA-256
hash. With --verify the embedded receipt_sha256 is checked against the
recomputed value and the command fails on mismatch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var rec contract.Receipt
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to parse receipt: %w", err)
		}

		if hashVerify {
			if err := receipt.Verify(&rec); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		}

		sum, err := receipt.Hash(&rec)
		if err != nil {
			return err
		}
		fmt.Println(sum)
		return nil
	},
}

func init() {
	hashCmd.Flags().BoolVar(&hashVerify, "verify", false, "verify the embedded receipt_sha256")
}
