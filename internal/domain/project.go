package domain

import (
	"time"

	"gorm.io/gorm"
)

// ProjectStatus uses the French labels stored in production data. The English
// aliases below are kept for older rows and API clients that still send them.
type ProjectStatus string

const (
	ProjectPending    ProjectStatus = "en attente"
	ProjectInProgress ProjectStatus = "en cours"
	ProjectGuarantee  ProjectStatus = "en garantie"
	ProjectCompleted  ProjectStatus = "terminé"
	ProjectCancelled  ProjectStatus = "annulé"
)

var statusAliases = map[string]ProjectStatus{
	"en attente":  ProjectPending,
	"en cours":    ProjectInProgress,
	"en garantie": ProjectGuarantee,
	"terminé":     ProjectCompleted,
	"annulé":      ProjectCancelled,

	// legacy English labels
	"pending":     ProjectPending,
	"in_progress": ProjectInProgress,
	"in-progress": ProjectInProgress,
	"guarantee":   ProjectGuarantee,
	"completed":   ProjectCompleted,
	"cancelled":   ProjectCancelled,
	"canceled":    ProjectCancelled,
}

// NormalizeStatus resolves a raw status string (French or legacy English) to
// its canonical form.
func NormalizeStatus(raw string) (ProjectStatus, bool) {
	s, ok := statusAliases[raw]
	return s, ok
}

func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectCompleted || s == ProjectCancelled
}

type Project struct {
	ID          int64         `json:"id" gorm:"primaryKey"`
	Name        string        `json:"name" validate:"required"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status" gorm:"index"`
	Progress    int           `json:"progress"`

	GuaranteeDays    int        `json:"guarantee_days"`
	GuaranteeEndDate *time.Time `json:"guarantee_end_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`

	OwnerID    int64  `json:"owner_id"`
	AssignedTo []User `json:"assigned_to,omitempty" gorm:"many2many:project_assignees"`

	// Highest progress threshold already signalled to assignees. Persisted so
	// milestone checks stay idempotent across re-runs instead of being
	// inferred from mutable state.
	LastNotifiedMilestone int `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave derives the guarantee end date whenever guarantee days are set
// or changed, and keeps a finished project inside the guarantee phase until
// that date has passed. The guarantee → completed transition itself is owned
// by the lifecycle monitor.
func (p *Project) BeforeSave(tx *gorm.DB) error {
	if p.Progress < 0 {
		p.Progress = 0
	}
	if p.Progress > 100 {
		p.Progress = 100
	}

	if p.GuaranteeDays > 0 && (p.GuaranteeEndDate == nil || p.guaranteeDaysChanged(tx)) {
		end := time.Now().AddDate(0, 0, p.GuaranteeDays)
		p.GuaranteeEndDate = &end
	}

	if p.Status == ProjectCompleted && p.GuaranteeDays > 0 {
		if p.GuaranteeEndDate == nil || time.Now().Before(*p.GuaranteeEndDate) {
			p.Status = ProjectGuarantee
		}
	}

	return nil
}

// guaranteeDaysChanged reports whether the guarantee_days about to be written
// differ from the stored row. New rows never count as changed, so an
// explicitly provided end date survives creation.
func (p *Project) guaranteeDaysChanged(tx *gorm.DB) bool {
	if p.ID == 0 {
		return false
	}
	var prev Project
	err := tx.Session(&gorm.Session{NewDB: true}).
		Select("guarantee_days").
		Take(&prev, p.ID).Error
	if err != nil {
		return false
	}
	return prev.GuaranteeDays != p.GuaranteeDays
}

// AssigneeIDs returns the ids of all assigned users.
func (p *Project) AssigneeIDs() []int64 {
	ids := make([]int64, 0, len(p.AssignedTo))
	for _, u := range p.AssignedTo {
		ids = append(ids, u.ID)
	}
	return ids
}
