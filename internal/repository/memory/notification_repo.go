package memory

import (
	"sort"
	"time"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

// notificationRepo - in-memory репозиторий уведомлений
type notificationRepo struct {
	s *Store
}

func (r *notificationRepo) Create(notif *models.Notification) error {
	if notif.CreationDate.IsZero() {
		notif.CreationDate = time.Now().UTC()
	}
	if notif.Status == "" {
		notif.Status = models.NotificationStatusNew
	}
	if notif.Locale == "" {
		notif.Locale = models.DefaultLocale
	}

	notif.ID = r.s.nextNotifID
	r.s.nextNotifID++
	r.s.notifs[notif.ID] = copyNotification(notif)
	return nil
}

func (r *notificationRepo) GetNewOrderByCreationDate(limit int) ([]*models.Notification, error) {
	var pending []*models.Notification
	for _, n := range r.s.notifs {
		if n.Status == models.NotificationStatusNew {
			pending = append(pending, n)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].CreationDate.Equal(pending[j].CreationDate) {
			return pending[i].CreationDate.Before(pending[j].CreationDate)
		}
		return pending[i].ID < pending[j].ID
	})

	if limit < len(pending) {
		pending = pending[:limit]
	}
	out := make([]*models.Notification, len(pending))
	for i, n := range pending {
		out[i] = copyNotification(n)
	}
	return out, nil
}

func (r *notificationRepo) GetRecent(limit int) ([]*models.Notification, error) {
	all := make([]*models.Notification, 0, len(r.s.notifs))
	for _, n := range r.s.notifs {
		all = append(all, n)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreationDate.Equal(all[j].CreationDate) {
			return all[i].CreationDate.After(all[j].CreationDate)
		}
		return all[i].ID > all[j].ID
	})

	if limit < len(all) {
		all = all[:limit]
	}
	out := make([]*models.Notification, len(all))
	for i, n := range all {
		out[i] = copyNotification(n)
	}
	return out, nil
}

func (r *notificationRepo) Count() (int64, error) {
	return int64(len(r.s.notifs)), nil
}

func (r *notificationRepo) StatusBatchUpdate(status models.NotificationStatus, fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if n, ok := r.s.notifs[id]; ok {
			n.Status = status
		}
	}
	return nil
}

func (r *notificationRepo) StatusRecipientBatchUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64, fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if n, ok := r.s.notifs[id]; ok {
			n.Status = status
			n.RecipientType = recipientType
			n.RecipientID = recipientID
		}
	}
	return nil
}

func (r *notificationRepo) StatusOfRecipientUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64) (int64, error) {
	var affected int64
	for _, n := range r.s.notifs {
		if n.RecipientType == recipientType && n.RecipientID == recipientID {
			n.Status = status
			affected++
		}
	}
	return affected, nil
}

func (r *notificationRepo) UnblockStatusOfDiscordUser(userID int64) (int64, error) {
	var affected int64
	for _, n := range r.s.notifs {
		if n.Status == models.NotificationStatusBlocked &&
			n.RecipientType == models.RecipientTypeUser &&
			n.RecipientID == userID {
			n.Status = models.NotificationStatusNew
			affected++
		}
	}
	return affected, nil
}

func (r *notificationRepo) NotificationBatchDeletes(fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(r.s.notifs, id)
	}
	return nil
}

func (r *notificationRepo) DeleteHavingCreationDateBefore(cutoff time.Time) (int64, error) {
	var deleted int64
	for id, n := range r.s.notifs {
		if n.CreationDate.Before(cutoff) {
			delete(r.s.notifs, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ repository.NotificationRepositoryInterface = (*notificationRepo)(nil)
