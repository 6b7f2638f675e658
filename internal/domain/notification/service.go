package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"suivipro/internal/domain"
)

// UserDirectory resolves display names for senders and recipients.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type Service struct {
	repo  *Repository
	users UserDirectory
	redis *redis.Client // optional; nil disables publishing
	log   *logrus.Logger
}

func NewService(repo *Repository, users UserDirectory, redisClient *redis.Client, log *logrus.Logger) *Service {
	return &Service{
		repo:  repo,
		users: users,
		redis: redisClient,
		log:   log,
	}
}

// --- store surface ---------------------------------------------------------

func (s *Service) List(ctx context.Context, recipientID int64, page, limit int) ([]Notification, error) {
	if page < 1 || limit < 0 {
		return nil, ErrValidation
	}
	return s.repo.ListByRecipient(ctx, recipientID, page, limit)
}

func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// MarkRead flips the read flag after checking ownership. Administrators may
// act on any recipient's notification; anyone else only on their own, and a
// mismatch is an explicit authorization failure rather than a silent no-op.
func (s *Service) MarkRead(ctx context.Context, id, actorID int64, actorRole string) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.RecipientID != actorID && actorRole != string(domain.RoleAdmin) {
		return nil, ErrNotOwner
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID int64) error {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func (s *Service) MarkAllUnread(ctx context.Context, recipientID int64) error {
	return s.repo.MarkAllUnread(ctx, recipientID)
}

func (s *Service) Delete(ctx context.Context, id, actorID int64, actorRole string) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.RecipientID != actorID && actorRole != string(domain.RoleAdmin) {
		return ErrNotOwner
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) DeleteAll(ctx context.Context, recipientID int64) (int64, error) {
	return s.repo.DeleteAllByRecipient(ctx, recipientID)
}

// Cleanup removes the recipient's notifications older than the cutoff. The
// cutoff comes from the client's retention policy and must be in the past.
func (s *Service) Cleanup(ctx context.Context, recipientID int64, cutoff time.Time) (int64, error) {
	if cutoff.IsZero() || cutoff.After(time.Now()) {
		return 0, ErrValidation
	}
	return s.repo.DeleteOlderThan(ctx, recipientID, cutoff)
}

// CountRecent exposes the idempotence probe to the lifecycle monitor.
func (s *Service) CountRecent(ctx context.Context, recipientID int64, t Type, projectID int64, since time.Time) (int64, error) {
	return s.repo.CountRecent(ctx, recipientID, t, projectID, since)
}

// --- creation --------------------------------------------------------------

func (s *Service) create(ctx context.Context, n *Notification, m *Metadata) (*Notification, error) {
	if err := n.SetMetadata(m); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	s.publish(ctx, n)
	return n, nil
}

// publish pushes the persisted notification onto the recipient's redis
// channel so a future push transport can subscribe. Delivery here is best
// effort; polling remains the source of truth.
func (s *Service) publish(ctx context.Context, n *Notification) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	channel := fmt.Sprintf("user_notifications:%d", n.RecipientID)
	if err := s.redis.Publish(ctx, channel, payload).Err(); err != nil {
		s.log.WithError(err).Debug("notification publish skipped")
	}
}

func (s *Service) senderName(ctx context.Context, senderID int64) (string, error) {
	u, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("resolve sender %d: %w", senderID, err)
	}
	return u.Name, nil
}

// fanOut persists one notification per recipient. Each persist is isolated:
// a failure for one recipient is logged and the loop continues, earlier rows
// stay committed.
func (s *Service) fanOut(ctx context.Context, recipientIDs []int64, build func(recipientID int64) *Notification, m *Metadata) (successful, failed int) {
	for _, rid := range recipientIDs {
		if _, err := s.create(ctx, build(rid), m); err != nil {
			failed++
			s.log.WithError(err).WithField("recipient_id", rid).Error("notification persist failed")
		} else {
			successful++
		}
	}
	return successful, failed
}

// --- one constructor per event type ----------------------------------------

func (s *Service) NotifyAssignment(ctx context.Context, recipientID, senderID, projectID int64, projectName string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeAssignment,
		Content:     fmt.Sprintf("%s vous a assigné au projet « %s »", name, projectName),
		ProjectID:   &projectID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName})
}

func (s *Service) NotifyComment(ctx context.Context, recipientID, senderID, projectID, commentID int64, projectName string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeComment,
		Content:     fmt.Sprintf("%s a commenté le projet « %s »", name, projectName),
		ProjectID:   &projectID,
		CommentID:   &commentID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName})
}

func (s *Service) NotifyStatusChange(ctx context.Context, recipientID, senderID, projectID int64, projectName, oldStatus, newStatus string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeStatusUpdate,
		Content:     fmt.Sprintf("%s a changé le statut du projet « %s » : %s → %s", name, projectName, oldStatus, newStatus),
		ProjectID:   &projectID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName, OldStatus: &oldStatus, NewStatus: &newStatus})
}

func (s *Service) NotifyRoleChange(ctx context.Context, recipientID, senderID int64, oldRole, newRole string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeRoleChange,
		Content:     fmt.Sprintf("%s a modifié votre rôle : %s → %s", name, oldRole, newRole),
	}, &Metadata{SenderName: &name, OldRole: &oldRole, NewRole: &newRole})
}

func (s *Service) NotifyDeadline(ctx context.Context, recipientID, projectID int64, projectName string) (*Notification, error) {
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		Type:        TypeDeadline,
		Content:     fmt.Sprintf("L'échéance du projet « %s » est arrivée", projectName),
		ProjectID:   &projectID,
	}, &Metadata{ProjectName: &projectName})
}

func (s *Service) NotifyMention(ctx context.Context, recipientID, senderID, projectID, commentID int64, projectName string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeMention,
		Content:     fmt.Sprintf("%s vous a mentionné dans un commentaire du projet « %s »", name, projectName),
		ProjectID:   &projectID,
		CommentID:   &commentID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName})
}

func (s *Service) NotifyAccountUpdate(ctx context.Context, recipientID, senderID int64) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeAccountUpdate,
		Content:     fmt.Sprintf("%s a mis à jour votre compte", name),
	}, &Metadata{SenderName: &name})
}

func (s *Service) NotifyApprovalRequest(ctx context.Context, recipientID, senderID, projectID int64, projectName string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeApprovalRequest,
		Content:     fmt.Sprintf("%s demande votre validation sur le projet « %s »", name, projectName),
		ProjectID:   &projectID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName})
}

func (s *Service) NotifyProjectChange(ctx context.Context, recipientID, senderID, projectID int64, projectName, changedField string) (*Notification, error) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, &Notification{
		RecipientID: recipientID,
		SenderID:    &senderID,
		Type:        TypeProjectChange,
		Content:     fmt.Sprintf("%s a modifié le projet « %s » (%s)", name, projectName, changedField),
		ProjectID:   &projectID,
	}, &Metadata{SenderName: &name, ProjectName: &projectName, ChangedField: &changedField})
}

// --- fan-out constructors: one persisted row per recipient -----------------

func (s *Service) NotifyGuaranteeStart(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, guaranteeEnd time.Time) (successful, failed int) {
	endStr := guaranteeEnd.Format(time.RFC3339)
	content := fmt.Sprintf("Le projet « %s » est entré en période de garantie (fin le %s)", projectName, guaranteeEnd.Format("02/01/2006"))
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeGuaranteeStart,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, GuaranteeEndDate: &endStr})
}

func (s *Service) NotifyGuaranteeEnd(ctx context.Context, recipientIDs []int64, projectID int64, projectName string) (successful, failed int) {
	content := fmt.Sprintf("La garantie du projet « %s » est terminée, le projet est maintenant terminé", projectName)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeGuaranteeEnd,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName})
}

func (s *Service) NotifyProgressMilestone(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, milestone int) (successful, failed int) {
	content := fmt.Sprintf("Le projet « %s » a atteint %d%% d'avancement", projectName, milestone)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeProgressMilestone,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, Milestone: &milestone})
}

func (s *Service) NotifyDeadlineApproaching(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, daysRemaining int) (successful, failed int) {
	content := fmt.Sprintf("Le projet « %s » arrive à échéance dans %d jour(s)", projectName, daysRemaining)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeDeadlineApproaching,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, DaysRemaining: &daysRemaining})
}

func (s *Service) NotifyInactivity(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, daysInactive int) (successful, failed int) {
	content := fmt.Sprintf("Le projet « %s » est inactif depuis %d jours", projectName, daysInactive)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeInactivityAlert,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, DaysInactive: &daysInactive})
}

func (s *Service) NotifyRiskAlert(ctx context.Context, recipientIDs []int64, projectID int64, projectName, risk string) (successful, failed int) {
	content := fmt.Sprintf("Risque signalé sur le projet « %s » : %s", projectName, risk)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeRiskAlert,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, Risk: &risk})
}

func (s *Service) NotifyTeamChange(ctx context.Context, recipientIDs []int64, senderID, projectID int64, projectName, change string) (successful, failed int) {
	name, err := s.senderName(ctx, senderID)
	if err != nil {
		// The sender lookup happens once, before any persist; nothing was
		// committed yet so the whole fan-out fails.
		s.log.WithError(err).Error("team change fan-out aborted")
		return 0, len(recipientIDs)
	}
	content := fmt.Sprintf("%s a modifié l'équipe du projet « %s » : %s", name, projectName, change)
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			SenderID:    &senderID,
			Type:        TypeTeamChange,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{SenderName: &name, ProjectName: &projectName})
}

func (s *Service) NotifyProjectDigest(ctx context.Context, recipientIDs []int64, projectID int64, projectName string, activity []string) (successful, failed int) {
	content := fmt.Sprintf("Résumé d'activité du projet « %s » : %d événement(s)", projectName, len(activity))
	return s.fanOut(ctx, recipientIDs, func(rid int64) *Notification {
		return &Notification{
			RecipientID: rid,
			Type:        TypeProjectDigest,
			Content:     content,
			ProjectID:   &projectID,
		}
	}, &Metadata{ProjectName: &projectName, Activity: activity})
}
