package notification

import (
	"encoding/json"
	"time"
)

// Type represents notification type
type Type string

const (
	// Direct collaboration events
	TypeAssignment    Type = "assignment"     // Assignee: ajouté à un projet
	TypeComment       Type = "comment"        // Assignees: nouveau commentaire
	TypeStatusUpdate  Type = "status_update"  // Assignees: statut du projet modifié
	TypeMention       Type = "mention"        // Mentioned user: cité dans un commentaire
	TypeProjectChange Type = "project_change" // Assignees: projet modifié
	TypeTeamChange    Type = "team_change"    // Assignees: équipe modifiée

	// Account events
	TypeRoleChange    Type = "role_change"    // User: rôle modifié
	TypeAccountUpdate Type = "account_update" // User: compte modifié

	// Lifecycle monitor events
	TypeGuaranteeStart      Type = "guarantee_start"      // Admins: entrée en garantie
	TypeGuaranteeEnd        Type = "guarantee_end"        // Admins: fin de garantie, projet terminé
	TypeProgressMilestone   Type = "progress_milestone"   // Assignees: palier d'avancement franchi
	TypeDeadline            Type = "deadline"             // Assignees: échéance atteinte
	TypeDeadlineApproaching Type = "deadline_approaching" // Assignees: échéance proche
	TypeInactivityAlert     Type = "inactivity_alert"     // Assignees+admins: projet inactif
	TypeRiskAlert           Type = "risk_alert"           // Assignees: risque signalé

	// Workflow
	TypeApprovalRequest Type = "approval_request" // Manager: validation demandée
	TypeProjectDigest   Type = "project_digest"   // Assignees: résumé d'activité
)

// Notification is one delivered event for one recipient. The recipient is
// fixed at creation; only the read flag and the row's existence ever change.
type Notification struct {
	ID          int64           `json:"id" gorm:"primaryKey"`
	RecipientID int64           `json:"recipient_id" gorm:"not null;index:idx_notifications_recipient_unread;index:idx_notifications_recipient_created,priority:1"`
	SenderID    *int64          `json:"sender_id,omitempty"`
	Type        Type            `json:"type" gorm:"not null"`
	Content     string          `json:"content"`
	ProjectID   *int64          `json:"project_id,omitempty"`
	CommentID   *int64          `json:"comment_id,omitempty"`
	IsRead      bool            `json:"is_read" gorm:"default:false;index:idx_notifications_recipient_unread"`
	Metadata    json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index:idx_notifications_recipient_created,priority:2,sort:desc"`
}

// TableName specifies table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// Metadata carries type-specific extras; the content string is rendered once
// at creation and never re-rendered, so anything a client may want to act on
// lives here.
type Metadata struct {
	Milestone        *int     `json:"milestone,omitempty"`
	DaysRemaining    *int     `json:"days_remaining,omitempty"`
	DaysInactive     *int     `json:"days_inactive,omitempty"`
	OldStatus        *string  `json:"old_status,omitempty"`
	NewStatus        *string  `json:"new_status,omitempty"`
	OldRole          *string  `json:"old_role,omitempty"`
	NewRole          *string  `json:"new_role,omitempty"`
	ChangedField     *string  `json:"changed_field,omitempty"`
	Risk             *string  `json:"risk,omitempty"`
	GuaranteeEndDate *string  `json:"guarantee_end_date,omitempty"` // RFC3339
	Activity         []string `json:"activity,omitempty"`           // digest lines
	SenderName       *string  `json:"sender_name,omitempty"`
	ProjectName      *string  `json:"project_name,omitempty"`
}

// SetMetadata encodes metadata to JSON
func (n *Notification) SetMetadata(m *Metadata) error {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	n.Metadata = b
	return nil
}

// GetMetadata decodes metadata from JSON
func (n *Notification) GetMetadata() *Metadata {
	if len(n.Metadata) == 0 {
		return &Metadata{}
	}
	var m Metadata
	_ = json.Unmarshal(n.Metadata, &m)
	return &m
}
