package memory

import (
	"time"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

// userSettingsRepo - in-memory репозиторий настроек пользователя
type userSettingsRepo struct {
	s *Store
}

func (r *userSettingsRepo) Get(userID int64) (*models.UserSettings, error) {
	s, ok := r.s.userSettings[userID]
	if !ok {
		return nil, repository.ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *userSettingsRepo) Upsert(settings *models.UserSettings) error {
	now := time.Now().UTC()
	if settings.CreationDate.IsZero() {
		settings.CreationDate = now
	}
	if settings.LastAccess.IsZero() {
		settings.LastAccess = now
	}
	if settings.Locale == "" {
		settings.Locale = models.DefaultLocale
	}
	if settings.Timezone == "" {
		settings.Timezone = models.DefaultTimezone
	}

	if existing, ok := r.s.userSettings[settings.UserID]; ok {
		// creation_date существующей записи не перетирается
		settings.CreationDate = existing.CreationDate
	}
	cp := *settings
	r.s.userSettings[settings.UserID] = &cp
	return nil
}

func (r *userSettingsRepo) UpdateLocale(userID int64, locale string) error {
	return r.update(userID, func(s *models.UserSettings) { s.Locale = locale })
}

func (r *userSettingsRepo) UpdateTimezone(userID int64, timezone string) error {
	return r.update(userID, func(s *models.UserSettings) { s.Timezone = timezone })
}

func (r *userSettingsRepo) UpdateLastAccess(userID int64, at time.Time) error {
	return r.update(userID, func(s *models.UserSettings) { s.LastAccess = at })
}

func (r *userSettingsRepo) UserBatchDeletes(fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(r.s.userSettings, id)
	}
	return nil
}

func (r *userSettingsRepo) update(userID int64, mutate func(*models.UserSettings)) error {
	s, ok := r.s.userSettings[userID]
	if !ok {
		return repository.ErrSettingsNotFound
	}
	mutate(s)
	return nil
}

// serverSettingsRepo - in-memory репозиторий настроек сервера
type serverSettingsRepo struct {
	s *Store
}

func (r *serverSettingsRepo) Get(serverID int64) (*models.ServerSettings, error) {
	s, ok := r.s.serverSettings[serverID]
	if !ok {
		return nil, repository.ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *serverSettingsRepo) Upsert(settings *models.ServerSettings) error {
	now := time.Now().UTC()
	if settings.CreationDate.IsZero() {
		settings.CreationDate = now
	}
	if settings.LastAccess.IsZero() {
		settings.LastAccess = now
	}
	if settings.Timezone == "" {
		settings.Timezone = models.DefaultTimezone
	}

	if existing, ok := r.s.serverSettings[settings.ServerID]; ok {
		settings.CreationDate = existing.CreationDate
	}
	cp := *settings
	r.s.serverSettings[settings.ServerID] = &cp
	return nil
}

func (r *serverSettingsRepo) UpdateTimezone(serverID int64, timezone string) error {
	return r.update(serverID, func(s *models.ServerSettings) { s.Timezone = timezone })
}

func (r *serverSettingsRepo) UpdateChannelID(serverID int64, channelID int64) error {
	return r.update(serverID, func(s *models.ServerSettings) { s.ChannelID = channelID })
}

func (r *serverSettingsRepo) UpdateLastAccess(serverID int64, at time.Time) error {
	return r.update(serverID, func(s *models.ServerSettings) { s.LastAccess = at })
}

func (r *serverSettingsRepo) Delete(serverID int64) error {
	if _, ok := r.s.serverSettings[serverID]; !ok {
		return repository.ErrSettingsNotFound
	}
	delete(r.s.serverSettings, serverID)
	return nil
}

func (r *serverSettingsRepo) update(serverID int64, mutate func(*models.ServerSettings)) error {
	s, ok := r.s.serverSettings[serverID]
	if !ok {
		return repository.ErrSettingsNotFound
	}
	mutate(s)
	return nil
}

var _ repository.UserSettingsRepositoryInterface = (*userSettingsRepo)(nil)
var _ repository.ServerSettingsRepositoryInterface = (*serverSettingsRepo)(nil)
