package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexai/cortex-engine/internal/compliance"
	"github.com/cortexai/cortex-engine/pkg/types"
)

var certificateRequestType string

var certificateCmd = &cobra.Command{
	Use:   "certificate",
	Short: "Issue or inspect compliance certificates",
}

var certificateIssueCmd = &cobra.Command{
	Use:   "issue <user-id>",
	Short: "Compute a footprint snapshot and persist a ComplianceCertificate",
	Args:  cobra.ExactArgs(1),
	RunE:  runCertificateIssue,
}

func init() {
	certificateIssueCmd.Flags().StringVar(&certificateRequestType, "type", string(types.RequestGDPRDeletion),
		"request type: gdpr_deletion, audit_request, or data_export")
	certificateCmd.AddCommand(certificateIssueCmd)
	rootCmd.AddCommand(certificateCmd)
}

func runCertificateIssue(cmd *cobra.Command, args []string) error {
	userID := args[0]
	requestType := types.ComplianceRequestType(certificateRequestType)
	switch requestType {
	case types.RequestGDPRDeletion, types.RequestAuditRequest, types.RequestDataExport:
	default:
		return fmt.Errorf("unknown request type %q", certificateRequestType)
	}

	ctx := context.Background()
	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	txn, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback()

	cert, err := compliance.Issue(ctx, s, txn, userID, requestType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("issue certificate: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	out, err := json.MarshalIndent(cert, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// decayCmd is a placeholder maintenance hook reserved for a future
// retrieval-count decay job. It is intentionally a stub: decay is out of
// scope for this engine, the subcommand exists only to reserve its name
// under the shared cortexctl root.
var decayCmd = &cobra.Command{
	Use:    "decay",
	Short:  "Placeholder for a future retrieval-count decay job (not implemented)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("decay: not implemented, reserved for a future maintenance job")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decayCmd)
}
