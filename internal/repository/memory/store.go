// Package memory предоставляет in-memory бэкенд слоя персистентности.
//
// Используется в тестах вместо Postgres: реализует те же интерфейсы
// репозиториев и транзакционного контекста с идентичной семантикой
// выборок, пагинации, батчей и откатов, так что общий conformance
// suite может гоняться против обоих бэкендов.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

// Store - in-memory хранилище всех сущностей движка.
// Одна крупная блокировка: транзакции сериализуются, для тестов этого
// достаточно.
type Store struct {
	mu sync.Mutex

	alerts      map[int64]*models.Alert
	nextAlertID int64

	notifs      map[int64]*models.Notification
	nextNotifID int64

	userSettings   map[int64]*models.UserSettings
	serverSettings map[int64]*models.ServerSettings
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{
		alerts:         make(map[int64]*models.Alert),
		nextAlertID:    1,
		notifs:         make(map[int64]*models.Notification),
		nextNotifID:    1,
		userSettings:   make(map[int64]*models.UserSettings),
		serverSettings: make(map[int64]*models.ServerSettings),
	}
}

// snapshot - точка отката: глубокая копия всех таблиц
type snapshot struct {
	alerts         map[int64]*models.Alert
	nextAlertID    int64
	notifs         map[int64]*models.Notification
	nextNotifID    int64
	userSettings   map[int64]*models.UserSettings
	serverSettings map[int64]*models.ServerSettings
}

func (s *Store) takeSnapshot() *snapshot {
	snap := &snapshot{
		alerts:         make(map[int64]*models.Alert, len(s.alerts)),
		nextAlertID:    s.nextAlertID,
		notifs:         make(map[int64]*models.Notification, len(s.notifs)),
		nextNotifID:    s.nextNotifID,
		userSettings:   make(map[int64]*models.UserSettings, len(s.userSettings)),
		serverSettings: make(map[int64]*models.ServerSettings, len(s.serverSettings)),
	}
	for id, a := range s.alerts {
		snap.alerts[id] = copyAlert(a)
	}
	for id, n := range s.notifs {
		snap.notifs[id] = copyNotification(n)
	}
	for id, u := range s.userSettings {
		cp := *u
		snap.userSettings[id] = &cp
	}
	for id, sv := range s.serverSettings {
		cp := *sv
		snap.serverSettings[id] = &cp
	}
	return snap
}

func (s *Store) restore(snap *snapshot) {
	s.alerts = snap.alerts
	s.nextAlertID = snap.nextAlertID
	s.notifs = snap.notifs
	s.nextNotifID = snap.nextNotifID
	s.userSettings = snap.userSettings
	s.serverSettings = snap.serverSettings
}

func copyAlert(a *models.Alert) *models.Alert {
	cp := *a
	cp.LastTrigger = copyTime(a.LastTrigger)
	cp.FromDate = copyTime(a.FromDate)
	cp.ToDate = copyTime(a.ToDate)
	return &cp
}

func copyNotification(n *models.Notification) *models.Notification {
	cp := *n
	if n.Fields != nil {
		cp.Fields = make(map[string]string, len(n.Fields))
		for k, v := range n.Fields {
			cp.Fields[k] = v
		}
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Transactional выполняет fn с семантикой commit/rollback поверх снапшотов.
//
// Частично закоммиченная работа (CommitUnit) переживает откат хвоста,
// ее AfterCommit callbacks выполняются; callbacks отмененной части
// отбрасываются. Все callbacks запускаются после снятия блокировки.
func (s *Store) Transactional(fn func(repository.Tx) error) error {
	s.mu.Lock()

	tx := &memTx{store: s, snap: s.takeSnapshot()}
	err := fn(tx)

	var callbacks []func()
	if err != nil {
		// Откат к последней точке фиксации, durable callbacks выживают
		s.restore(tx.snap)
		callbacks = tx.committed
	} else {
		callbacks = append(tx.committed, tx.pending...)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return err
}

// memTx - транзакционный контекст in-memory бэкенда
type memTx struct {
	store *Store
	snap  *snapshot // точка отката (двигается при частичных коммитах)

	pending   []func() // AfterCommit текущей (незафиксированной) части
	committed []func() // AfterCommit уже зафиксированных частей
	units     int
}

func (t *memTx) Alerts() repository.AlertRepositoryInterface {
	return &alertRepo{t.store}
}

func (t *memTx) Notifications() repository.NotificationRepositoryInterface {
	return &notificationRepo{t.store}
}

func (t *memTx) UserSettings() repository.UserSettingsRepositoryInterface {
	return &userSettingsRepo{t.store}
}

func (t *memTx) ServerSettings() repository.ServerSettingsRepositoryInterface {
	return &serverSettingsRepo{t.store}
}

func (t *memTx) AfterCommit(fn func()) {
	t.pending = append(t.pending, fn)
}

// CommitUnit двигает точку отката после n накопленных единиц работы
func (t *memTx) CommitUnit(n int) error {
	t.units++
	if n <= 0 || t.units < n {
		return nil
	}
	t.snap = t.store.takeSnapshot()
	t.committed = append(t.committed, t.pending...)
	t.pending = nil
	t.units = 0
	return nil
}

// Child выполняет fn в дочернем контексте; его коммит-единицы не
// двигают точку отката родителя
func (t *memTx) Child(fn func(repository.Tx) error) error {
	return fn(&childTx{parent: t})
}

type childTx struct {
	parent *memTx
	units  int
}

func (c *childTx) Alerts() repository.AlertRepositoryInterface { return c.parent.Alerts() }
func (c *childTx) Notifications() repository.NotificationRepositoryInterface {
	return c.parent.Notifications()
}
func (c *childTx) UserSettings() repository.UserSettingsRepositoryInterface {
	return c.parent.UserSettings()
}
func (c *childTx) ServerSettings() repository.ServerSettingsRepositoryInterface {
	return c.parent.ServerSettings()
}
func (c *childTx) AfterCommit(fn func()) { c.parent.AfterCommit(fn) }

func (c *childTx) CommitUnit(n int) error {
	c.units++
	return nil
}

func (c *childTx) Child(fn func(repository.Tx) error) error {
	return fn(&childTx{parent: c.parent})
}

var _ repository.TxManager = (*Store)(nil)
var _ repository.Tx = (*memTx)(nil)
var _ repository.Tx = (*childTx)(nil)

// ============ Общие предикаты (зеркалируют SQL бэкенд) ============

// matchesFilter повторяет filterClause Postgres-бэкенда
func matchesFilter(a *models.Alert, f models.SelectionFilter) bool {
	if f.ServerID != nil && a.ServerID != *f.ServerID {
		return false
	}
	if f.UserID != nil && a.UserID != *f.UserID {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.TickerOrPair != "" {
		if f.IsPair() {
			if a.Pair != f.TickerOrPair {
				return false
			}
		} else {
			parts := strings.SplitN(a.Pair, "/", 2)
			base := parts[0]
			quote := ""
			if len(parts) == 2 {
				quote = parts[1]
			}
			if base != f.TickerOrPair && quote != f.TickerOrPair {
				return false
			}
		}
	}
	return true
}

// eligible повторяет eligibilityCondition Postgres-бэкенда
func eligible(a *models.Alert, now time.Time, checkPeriod time.Duration) bool {
	if a.ListeningDate.After(now) {
		return false
	}

	delta := checkPeriod / 2

	if a.Type == models.AlertTypeRemainder {
		horizon := now.Add(checkPeriod + delta)
		return a.FromDate != nil && !a.FromDate.After(horizon)
	}

	if a.Repeat <= 0 && !a.Margin.IsPositive() {
		return false
	}
	if a.LastTrigger != nil {
		next := a.LastTrigger.Add(time.Duration(a.Snooze) * time.Hour)
		if next.After(now.Add(delta)) {
			return false
		}
	}
	if a.Type == models.AlertTypeRange {
		if a.FromDate != nil && a.FromDate.After(now.Add(delta)) {
			return false
		}
		if a.ToDate != nil && a.ToDate.Before(now) {
			return false
		}
	}
	return true
}

// sortedAlertIDs возвращает id в порядке возрастания
func (s *Store) sortedAlertIDs() []int64 {
	ids := make([]int64, 0, len(s.alerts))
	for id := range s.alerts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
