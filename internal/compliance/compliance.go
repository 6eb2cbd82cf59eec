// Package compliance issues ComplianceCertificate records from a computed
// footprint: the one piece of write-path logic that sits directly on top
// of internal/footprint's read-only reachability queries, taking an
// externally supplied store.Txn the same way internal/provenance's
// recorders do.
package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cortexai/cortex-engine/internal/footprint"
	"github.com/cortexai/cortex-engine/internal/store"
	"github.com/cortexai/cortex-engine/pkg/types"
)

// gdprGraceDays is the grace period before a gdpr_deletion certificate's
// footprint becomes eligible for hard deletion. 30 days is the common
// GDPR-compliance default (see DESIGN.md for why it isn't configurable
// per call).
const gdprGraceDays = 30

// Issue computes F(u) for userID, stamps a ComplianceCertificate of the
// given request type, and persists it through txn. The caller commits.
func Issue(ctx context.Context, s store.Store, txn store.Txn, userID string, requestType types.ComplianceRequestType, now time.Time) (*types.ComplianceCertificate, error) {
	fp, err := footprint.ComputeUserFootprint(ctx, s, userID)
	if err != nil {
		return nil, fmt.Errorf("compute footprint for %s: %w", userID, err)
	}

	snapshot, err := fp.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize footprint: %w", err)
	}

	hash, err := fp.CertificateHash()
	if err != nil {
		return nil, fmt.Errorf("hash footprint: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	gracePeriodEnd := now
	if requestType == types.RequestGDPRDeletion {
		gracePeriodEnd = now.AddDate(0, 0, gdprGraceDays)
	}

	cert := &types.ComplianceCertificate{
		ID:                id.String(),
		UserID:            userID,
		RequestType:       requestType,
		FootprintSnapshot: snapshot,
		NodesDeleted:      0,
		EdgesAffected:     0,
		DeletionTimestamp: now,
		GracePeriodEnd:    gracePeriodEnd,
		Verified:          false,
		CertificateHash:   hash,
	}

	if err := txn.InsertComplianceCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("insert compliance certificate: %w", err)
	}

	return cert, nil
}
