package services

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"famfin/internal/logger"
	"famfin/internal/models"
)

// auditService records who changed what. Recording is best-effort: a failed entry is
// logged and the caller's mutation stands.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

func (s *auditService) Log(principalID, action, resourceType, resourceID, ipAddress string, changes map[string]any) {
	log := logger.Named("audit").With(
		"principal_id", principalID,
		"action", action,
		"resource_type", resourceType,
		"resource_id", resourceID,
	)

	entry := &models.AuditLog{
		PrincipalID:  principalID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Changes:      datatypes.JSON("{}"),
	}
	if len(changes) > 0 {
		data, err := json.Marshal(changes)
		if err != nil {
			log.Warnw("dropping unencodable audit changes", "error", err)
		} else {
			entry.Changes = datatypes.JSON(data)
		}
	}

	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("failed to record audit entry", "error", err)
	}
}
