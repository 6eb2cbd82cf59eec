package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cortexai/cortex-engine/internal/footprint"
)

var footprintCmd = &cobra.Command{
	Use:   "footprint <user-id>",
	Short: "Print a user's data and influence footprint plus its certificate hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runFootprint,
}

func init() {
	rootCmd.AddCommand(footprintCmd)
}

func runFootprint(cmd *cobra.Command, args []string) error {
	userID := args[0]
	ctx := context.Background()

	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	fp, err := footprint.ComputeUserFootprint(ctx, s, userID)
	if err != nil {
		return fmt.Errorf("compute footprint: %w", err)
	}

	influence, err := footprint.ComputeInfluenceFootprint(ctx, s, fp)
	if err != nil {
		return fmt.Errorf("compute influence footprint: %w", err)
	}

	hash, err := fp.CertificateHash()
	if err != nil {
		return fmt.Errorf("hash footprint: %w", err)
	}

	out, err := json.MarshalIndent(map[string]any{
		"footprint":        fp,
		"influence_footprint": influence,
		"certificate_hash": hash,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	fmt.Println(string(out))
	return nil
}
