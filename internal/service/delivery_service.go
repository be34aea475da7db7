package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"spotalert/internal/config"
	"spotalert/internal/discord"
	"spotalert/internal/engine"
	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/pkg/utils"
)

// recipientKey группирует уведомления раунда по адресату
type recipientKey struct {
	Type models.RecipientType
	ID   int64
}

// DeliveryService - сервис доставки уведомлений.
//
// Машина состояний (переходы валидируются ValidTransitions):
//
//	NEW → SENDING     захват раунда, в одной транзакции
//	SENDING → удалено успешная доставка или исчезнувший получатель
//	SENDING → NEW     временная сетевая ошибка
//	SENDING → BLOCKED получатель заблокировал бота
//	BLOCKED → NEW     только явный UnblockUser
//
// Повторные пинки Notify во время идущего раунда коалесцируются в
// следующий раунд вместо избыточных чтений. Исходящие отправки раунда
// выполняются строго после durable-коммита захватившей транзакции:
// откатившийся захват никогда не производит отправку.
type DeliveryService struct {
	cfg         config.DeliveryConfig
	txm         repository.TxManager
	sender      discord.Sender
	renderer    *discord.Renderer
	broadcaster Broadcaster
	log         *utils.Logger

	mu      sync.Mutex
	running bool
	rerun   bool
}

// NewDeliveryService создает сервис доставки
func NewDeliveryService(cfg config.DeliveryConfig, txm repository.TxManager, sender discord.Sender, log *utils.Logger) *DeliveryService {
	return &DeliveryService{
		cfg:      cfg,
		txm:      txm,
		sender:   sender,
		renderer: discord.NewRenderer(),
		log:      log.WithComponent("delivery"),
	}
}

// SetBroadcaster устанавливает приемник событий доставки (опционально)
func (s *DeliveryService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Run запускает фоновые тикеры сервиса до отмены контекста:
// retry-раунды для вернувшихся в NEW уведомлений и retention sweep'ы
func (s *DeliveryService) Run(ctx context.Context) error {
	retryTicker := time.NewTicker(s.cfg.RetryPeriod)
	retentionTicker := time.NewTicker(s.cfg.RetentionCheckPeriod)
	defer retryTicker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-retryTicker.C:
			s.Notify()
		case <-retentionTicker.C:
			s.RunRetention(time.Now().UTC())
		}
	}
}

// Notify запрашивает раунд доставки. Пинки, пришедшие во время идущего
// раунда, коалесцируются в один следующий раунд (debounce-guard), а не
// порождают избыточные чтения.
func (s *DeliveryService) Notify() {
	s.mu.Lock()
	if s.running {
		s.rerun = true
		s.mu.Unlock()
		engine.DispatchCoalesced.Inc()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.roundLoop()
}

// roundLoop выполняет раунды, пока приходят коалесцированные пинки
func (s *DeliveryService) roundLoop() {
	for {
		if err := s.RunRound(); err != nil {
			s.log.Error("Dispatch round failed", utils.Err(err))
		}

		// Окно коалесценции: пинки за это время сливаются в один раунд
		time.Sleep(s.cfg.DebounceWindow)

		s.mu.Lock()
		if !s.rerun {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.rerun = false
		s.mu.Unlock()
	}
}

// RunRound выполняет один раунд доставки: захватывает до BatchSize NEW
// уведомлений в SENDING одной транзакцией, после коммита группирует их
// по получателям и отправляет.
//
// Два конкурентных раунда не могут захватить одно уведомление: захват
// атомарен, а отправка идет только из AfterCommit захватившей
// транзакции.
func (s *DeliveryService) RunRound() error {
	engine.DispatchRounds.Inc()

	return s.txm.Transactional(func(tx repository.Tx) error {
		notifs, err := tx.Notifications().GetNewOrderByCreationDate(s.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(notifs) == 0 {
			return nil
		}

		err = tx.Notifications().StatusBatchUpdate(models.NotificationStatusSending, func(b repository.BatchAccumulator) {
			for _, n := range notifs {
				b.BatchID(n.ID)
			}
		})
		if err != nil {
			return err
		}

		tx.AfterCommit(func() { s.deliver(notifs) })
		return nil
	})
}

// deliver разводит захваченные уведомления по получателям и доставляет
// каждую группу независимо: сбой одного получателя не трогает остальных
func (s *DeliveryService) deliver(notifs []*models.Notification) {
	groups := make(map[recipientKey][]*models.Notification)
	var order []recipientKey
	for _, n := range notifs {
		key := recipientKey{Type: n.RecipientType, ID: n.RecipientID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], n)
	}

	for _, key := range order {
		if err := s.deliverGroup(key, groups[key]); err != nil {
			s.log.Error("Recipient group delivery failed",
				utils.String("recipient_type", string(key.Type)),
				utils.Int64("recipient_id", key.ID),
				utils.Err(err))
		}
	}
}

// deliverGroup отправляет все уведомления одного получателя и
// сводит исходы обратно в состояние одной транзакцией
func (s *DeliveryService) deliverGroup(key recipientKey, group []*models.Notification) error {
	loc, channelID := s.recipientContext(key)

	var removed, transient, blocked []int64
	var migrate []*models.Notification

	for i, n := range group {
		content := s.renderer.Render(n, loc)

		start := time.Now()
		err := s.send(key, channelID, content)
		engine.SendLatency.Observe(float64(time.Since(start).Milliseconds()))

		if err == nil {
			removed = append(removed, n.ID)
			s.recordOutcome(n.ID, "delivered")
			continue
		}

		kind := discord.KindOf(err)
		if kind == discord.FailureAccessRevoked && key.Type == models.RecipientTypeUser {
			// Личный канал не бывает "отозванным": 403 в DM означает,
			// что получатель закрылся от бота
			kind = discord.FailureBlocked
		}

		switch kind {
		case discord.FailureRecipientGone:
			removed = append(removed, n.ID)
			s.recordOutcome(n.ID, "recipient_gone")
		case discord.FailureBlocked:
			blocked = append(blocked, n.ID)
			s.recordOutcome(n.ID, "blocked")
		case discord.FailureAccessRevoked:
			// Сервер недоступен целиком: остаток группы уходит в миграцию
			migrate = group[i:]
			s.recordOutcome(n.ID, "access_revoked")
		default:
			transient = append(transient, n.ID)
			s.recordOutcome(n.ID, "transient")
			s.log.Warn("Transient delivery failure",
				utils.NotificationID(n.ID), utils.Err(err))
		}

		if migrate != nil {
			break
		}
	}

	return s.txm.Transactional(func(tx repository.Tx) error {
		if len(removed) > 0 {
			err := tx.Notifications().NotificationBatchDeletes(func(b repository.BatchAccumulator) {
				for _, id := range removed {
					b.BatchID(id)
				}
			})
			if err != nil {
				return err
			}
		}
		if len(transient) > 0 {
			if err := s.batchStatus(tx, models.NotificationStatusNew, transient); err != nil {
				return err
			}
		}
		if len(blocked) > 0 {
			if err := s.batchStatus(tx, models.NotificationStatusBlocked, blocked); err != nil {
				return err
			}
		}
		if migrate != nil {
			if err := s.migrateGroup(tx, key.ID, migrate); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordOutcome фиксирует исход попытки в метриках и, при настроенном
// hub'е, в событийном канале админ-панели
func (s *DeliveryService) recordOutcome(notificationID int64, outcome string) {
	engine.RecordDeliveryOutcome(outcome)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastDeliveryOutcome(notificationID, outcome)
	}
}

// send выполняет одну отправку с ограниченным таймаутом
func (s *DeliveryService) send(key recipientKey, channelID int64, content string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
	defer cancel()

	if key.Type == models.RecipientTypeUser {
		return s.sender.SendToUser(ctx, key.ID, content)
	}
	return s.sender.SendToChannel(ctx, key.ID, channelID, content)
}

// batchStatus переводит партию id в новый статус, проверяя допустимость
// перехода SENDING → status
func (s *DeliveryService) batchStatus(tx repository.Tx, status models.NotificationStatus, ids []int64) error {
	if !CanTransition(models.NotificationStatusSending, status) {
		return errors.New("illegal notification status transition")
	}
	return tx.Notifications().StatusBatchUpdate(status, func(b repository.BatchAccumulator) {
		for _, id := range ids {
			b.BatchID(id)
		}
	})
}

// migrateGroup обрабатывает отозванный доступ к серверу: алерты каждого
// затронутого владельца переезжают на личный канал, неотправленные
// уведомления ретаргетируются туда же (NEW), владелец получает MIGRATED.
//
// Миграция и ретаргет коммитятся вместе: не бывает уведомления,
// ссылающегося на откатившуюся миграцию. Большие серверы коммитятся
// частями через CommitUnit.
func (s *DeliveryService) migrateGroup(tx repository.Tx, serverID int64, notifs []*models.Notification) error {
	perUser := make(map[int64][]*models.Notification)
	var userOrder []int64
	for _, n := range notifs {
		if _, ok := perUser[n.UserID]; !ok {
			userOrder = append(userOrder, n.UserID)
		}
		perUser[n.UserID] = append(perUser[n.UserID], n)
	}

	for _, userID := range userOrder {
		moved, err := tx.Alerts().UpdateServerIDOfUserAndServerID(userID, serverID, models.ServerIDPrivate)
		if err != nil {
			return err
		}

		err = tx.Notifications().StatusRecipientBatchUpdate(
			models.NotificationStatusNew, models.RecipientTypeUser, userID,
			func(b repository.BatchAccumulator) {
				for _, n := range perUser[userID] {
					b.BatchID(n.ID)
				}
			})
		if err != nil {
			return err
		}

		if moved > 0 {
			err := s.enqueueMigrated(tx, userID, serverID, moved)
			if err != nil {
				return err
			}
		}
		engine.RecordDeliveryOutcome("migrated")

		if err := tx.CommitUnit(s.cfg.CommitEvery); err != nil {
			return err
		}
	}

	// Ретаргетированные уведомления ждут в NEW: пинаем следующий раунд
	tx.AfterCommit(s.Notify)
	return nil
}

// enqueueMigrated уведомляет владельца о переносе его алертов в личный
// канал
func (s *DeliveryService) enqueueMigrated(tx repository.Tx, userID, fromServerID int64, count int64) error {
	notif := &models.Notification{
		Type:          models.NotificationTypeMigrated,
		RecipientType: models.RecipientTypeUser,
		RecipientID:   userID,
		UserID:        userID,
		Fields: map[string]string{
			models.FieldCount:        strconv.FormatInt(count, 10),
			models.FieldFromServerID: strconv.FormatInt(fromServerID, 10),
		},
	}

	settings, err := tx.UserSettings().Get(userID)
	switch {
	case err == nil:
		notif.Locale = settings.Locale
	case !errors.Is(err, repository.ErrSettingsNotFound):
		return err
	}

	if err := tx.Notifications().Create(notif); err != nil {
		return err
	}
	engine.RecordNotificationCreated(string(models.NotificationTypeMigrated))
	return nil
}

// recipientContext возвращает таймзону получателя для рендеринга и,
// для серверов, настроенный канал уведомлений (0 = системный канал)
func (s *DeliveryService) recipientContext(key recipientKey) (*time.Location, int64) {
	loc := time.UTC
	var channelID int64

	err := s.txm.Transactional(func(tx repository.Tx) error {
		if key.Type == models.RecipientTypeUser {
			settings, err := tx.UserSettings().Get(key.ID)
			if err == nil {
				loc = settings.Location()
			} else if !errors.Is(err, repository.ErrSettingsNotFound) {
				return err
			}
			return nil
		}

		settings, err := tx.ServerSettings().Get(key.ID)
		if err == nil {
			channelID = settings.ChannelID
			if l, lerr := time.LoadLocation(settings.Timezone); lerr == nil {
				loc = l
			}
		} else if !errors.Is(err, repository.ErrSettingsNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Recipient settings lookup failed",
			utils.Int64("recipient_id", key.ID), utils.Err(err))
	}
	return loc, channelID
}

// UnblockUser возвращает все BLOCKED уведомления пользователя в NEW -
// получатель снова взаимодействует с ботом. Возвращает число
// разблокированных.
func (s *DeliveryService) UnblockUser(userID int64) (int64, error) {
	var n int64
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		n, err = tx.Notifications().UnblockStatusOfDiscordUser(userID)
		return err
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.log.Info("Recipient unblocked", utils.UserID(userID), utils.Count(int(n)))
		s.Notify()
	}
	return n, nil
}

// RunRetention удаляет уведомления старше окна хранения независимо от
// статуса, ограничивая рост хранилища от навсегда заблокированных
// записей
func (s *DeliveryService) RunRetention(now time.Time) {
	cutoff := now.Add(-s.cfg.RetentionPeriod)

	var removed int64
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		removed, err = tx.Notifications().DeleteHavingCreationDateBefore(cutoff)
		return err
	})
	if err != nil {
		s.log.Error("Notification retention sweep failed", utils.Err(err))
		return
	}
	if removed > 0 {
		engine.NotificationsSwept.Add(float64(removed))
		s.log.Info("Notifications swept", utils.Count(int(removed)))
	}
}

// RecentNotifications возвращает последние уведомления независимо от
// статуса (админ-API)
func (s *DeliveryService) RecentNotifications(limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var notifs []*models.Notification
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		notifs, err = tx.Notifications().GetRecent(limit)
		return err
	})
	return notifs, err
}

// NotificationCount возвращает общее число уведомлений
func (s *DeliveryService) NotificationCount() (int64, error) {
	var count int64
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		count, err = tx.Notifications().Count()
		return err
	})
	return count, err
}
