package types

import "time"

// ComplianceRequestType classifies the purpose of a ComplianceCertificate.
type ComplianceRequestType string

const (
	RequestGDPRDeletion ComplianceRequestType = "gdpr_deletion"
	RequestAuditRequest ComplianceRequestType = "audit_request"
	RequestDataExport   ComplianceRequestType = "data_export"
)

// ComplianceCertificate records the footprint snapshot backing a
// compliance action (deletion, audit, export) for a given user, seeded by
// the footprint engine.
type ComplianceCertificate struct {
	ID               string                `json:"id"`
	UserID           string                `json:"user_id"`
	RequestType      ComplianceRequestType `json:"request_type"`
	FootprintSnapshot []byte               `json:"footprint_snapshot"` // canonical JSON blob
	NodesDeleted     int                   `json:"nodes_deleted"`
	EdgesAffected    int                   `json:"edges_affected"`
	DeletionTimestamp time.Time            `json:"deletion_timestamp"`
	GracePeriodEnd   time.Time             `json:"grace_period_end"`
	HardDeletedAt    *time.Time            `json:"hard_deleted_at,omitempty"`
	Verified         bool                  `json:"verified"`
	VerifiedAt       *time.Time            `json:"verified_at,omitempty"`
	CertificateHash  string                `json:"certificate_hash"` // 64 hex chars
	Metadata         map[string]any        `json:"metadata,omitempty"`
}
