package models

import "gorm.io/datatypes"

// AuditLog records a principal's change to an obligation, transaction or the period
// lattice. Changes holds the request fields that drove the change.
type AuditLog struct {
	Base
	PrincipalID  string         `gorm:"not null;index" json:"principal_id"`
	Action       string         `gorm:"not null;size:64" json:"action"`
	ResourceType string         `gorm:"not null;size:32;index:idx_audit_logs_resource,priority:1" json:"resource_type"`
	ResourceID   string         `gorm:"index:idx_audit_logs_resource,priority:2" json:"resource_id"`
	IPAddress    string         `json:"ip_address"`
	Changes      datatypes.JSON `gorm:"not null" json:"changes"`
}
