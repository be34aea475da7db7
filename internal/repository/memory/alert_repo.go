package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

// collectIDs - аналог collect Postgres-бэкенда: прогоняет fn через
// дедуплицирующий аккумулятор
func collectIDs(fn func(repository.BatchAccumulator)) ([]int64, error) {
	b := &idBatch{seen: make(map[int64]struct{})}
	fn(b)
	if len(b.ids) == 0 {
		return nil, repository.ErrEmptyBatch
	}
	return b.ids, nil
}

type idBatch struct {
	ids  []int64
	seen map[int64]struct{}
}

func (b *idBatch) BatchID(id int64) {
	if _, ok := b.seen[id]; ok {
		return
	}
	b.seen[id] = struct{}{}
	b.ids = append(b.ids, id)
}

// alertRepo - in-memory репозиторий алертов
type alertRepo struct {
	s *Store
}

func (r *alertRepo) Create(alert *models.Alert) error {
	if alert.CreationDate.IsZero() {
		alert.CreationDate = time.Now().UTC()
	}
	if alert.ListeningDate.IsZero() {
		alert.ListeningDate = alert.CreationDate
	}
	alert.Exchange = strings.ToLower(alert.Exchange)
	alert.Pair = strings.ToUpper(alert.Pair)

	alert.ID = r.s.nextAlertID
	r.s.nextAlertID++
	r.s.alerts[alert.ID] = copyAlert(alert)
	return nil
}

func (r *alertRepo) GetByID(id int64) (*models.Alert, error) {
	a, ok := r.s.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	return copyAlert(a), nil
}

func (r *alertRepo) GetMessagesByID(ids []int64) (map[int64]string, error) {
	messages := make(map[int64]string, len(ids))
	for _, id := range ids {
		if a, ok := r.s.alerts[id]; ok {
			messages[id] = a.Message
		}
	}
	return messages, nil
}

func (r *alertRepo) CountAlerts(filter models.SelectionFilter) (int64, error) {
	var count int64
	for _, a := range r.s.alerts {
		if matchesFilter(a, filter) {
			count++
		}
	}
	return count, nil
}

func (r *alertRepo) GetAlertsOrderByPairUserIDID(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, error) {
	var matched []*models.Alert
	for _, a := range r.s.alerts {
		if matchesFilter(a, filter) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Pair != matched[j].Pair {
			return matched[i].Pair < matched[j].Pair
		}
		if matched[i].UserID != matched[j].UserID {
			return matched[i].UserID < matched[j].UserID
		}
		return matched[i].ID < matched[j].ID
	})

	if offset >= int64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < int64(len(matched)) {
		matched = matched[:limit]
	}

	page := make([]*models.Alert, len(matched))
	for i, a := range matched {
		page[i] = copyAlert(a)
	}
	return page, nil
}

func (r *alertRepo) GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange(now time.Time, checkPeriod time.Duration) (map[string][]string, error) {
	seen := make(map[string]map[string]struct{})
	for _, a := range r.s.alerts {
		if !eligible(a, now, checkPeriod) {
			continue
		}
		if seen[a.Exchange] == nil {
			seen[a.Exchange] = make(map[string]struct{})
		}
		seen[a.Exchange][a.Pair] = struct{}{}
	}

	pairs := make(map[string][]string, len(seen))
	for exchange, set := range seen {
		for pair := range set {
			pairs[exchange] = append(pairs[exchange], pair)
		}
		sort.Strings(pairs[exchange])
	}
	return pairs, nil
}

func (r *alertRepo) FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange(
	now time.Time, exchange, pair string, checkPeriod time.Duration, consumer repository.AlertConsumer) error {

	return r.stream(consumer, func(a *models.Alert) bool {
		return a.Exchange == exchange && a.Pair == pair && eligible(a, now, checkPeriod)
	})
}

func (r *alertRepo) FetchAlertsHavingRepeatZeroAndLastTriggerBefore(threshold time.Time, consumer repository.AlertConsumer) error {
	return r.stream(consumer, func(a *models.Alert) bool {
		return a.Type != models.AlertTypeRemainder &&
			a.Repeat == 0 &&
			a.LastTrigger != nil && a.LastTrigger.Before(threshold)
	})
}

func (r *alertRepo) FetchAlertsByTypeHavingToDateBefore(alertType models.AlertType, threshold time.Time, consumer repository.AlertConsumer) error {
	return r.stream(consumer, func(a *models.Alert) bool {
		return a.Type == alertType && a.ToDate != nil && a.ToDate.Before(threshold)
	})
}

// stream прогоняет подходящие алерты через consumer в порядке id,
// без message (зеркалирует hot-path выборки Postgres)
func (r *alertRepo) stream(consumer repository.AlertConsumer, match func(*models.Alert) bool) error {
	for _, id := range r.s.sortedAlertIDs() {
		a := r.s.alerts[id]
		if !match(a) {
			continue
		}
		cp := copyAlert(a)
		cp.Message = ""
		if err := consumer(cp); err != nil {
			return err
		}
	}
	return nil
}

func (r *alertRepo) MatchedAlertBatchUpdates(now time.Time, fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		a, ok := r.s.alerts[id]
		if !ok {
			continue
		}
		// Идемпотентность: повтор с тем же now - no-op
		if a.LastTrigger != nil && a.LastTrigger.Equal(now) {
			continue
		}
		a.Margin = decimal.Zero
		if a.Repeat > 0 {
			a.Repeat--
		}
		t := now
		a.LastTrigger = &t
	}
	return nil
}

func (r *alertRepo) MarginAlertBatchUpdates(fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if a, ok := r.s.alerts[id]; ok {
			a.Margin = decimal.Zero
		}
	}
	return nil
}

func (r *alertRepo) AlertBatchDeletes(fn func(repository.BatchAccumulator)) error {
	ids, err := collectIDs(fn)
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(r.s.alerts, id)
	}
	return nil
}

func (r *alertRepo) DeleteByFilter(filter models.SelectionFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, repository.ErrEmptyFilter
	}

	var deleted int64
	for id, a := range r.s.alerts {
		if matchesFilter(a, filter) {
			delete(r.s.alerts, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *alertRepo) UpdateServerIDByFilter(filter models.SelectionFilter, serverID int64) (int64, error) {
	if filter.IsEmpty() {
		return 0, repository.ErrEmptyFilter
	}

	var moved int64
	for _, a := range r.s.alerts {
		if matchesFilter(a, filter) {
			a.ServerID = serverID
			moved++
		}
	}
	return moved, nil
}

func (r *alertRepo) UpdateServerIDOfUserAndServerID(userID, serverID, newServerID int64) (int64, error) {
	var moved int64
	for _, a := range r.s.alerts {
		if a.UserID == userID && a.ServerID == serverID {
			a.ServerID = newServerID
			moved++
		}
	}
	return moved, nil
}

func (r *alertRepo) UpdateMessage(id int64, message string) error {
	return r.update(id, func(a *models.Alert) { a.Message = message })
}

func (r *alertRepo) UpdateMargin(id int64, margin decimal.Decimal) error {
	return r.update(id, func(a *models.Alert) { a.Margin = margin })
}

func (r *alertRepo) UpdateRepeat(id int64, repeat int16) error {
	return r.update(id, func(a *models.Alert) { a.Repeat = repeat })
}

func (r *alertRepo) UpdateSnooze(id int64, snooze int16) error {
	return r.update(id, func(a *models.Alert) { a.Snooze = snooze })
}

func (r *alertRepo) UpdateFromPrice(id int64, price decimal.Decimal) error {
	return r.update(id, func(a *models.Alert) { a.FromPrice = price })
}

func (r *alertRepo) UpdateToPrice(id int64, price decimal.Decimal) error {
	return r.update(id, func(a *models.Alert) { a.ToPrice = price })
}

func (r *alertRepo) UpdateFromDate(id int64, date *time.Time) error {
	return r.update(id, func(a *models.Alert) { a.FromDate = copyTime(date) })
}

func (r *alertRepo) UpdateToDate(id int64, date *time.Time) error {
	return r.update(id, func(a *models.Alert) { a.ToDate = copyTime(date) })
}

func (r *alertRepo) UpdateListeningDate(id int64, date time.Time) error {
	return r.update(id, func(a *models.Alert) { a.ListeningDate = date })
}

func (r *alertRepo) update(id int64, mutate func(*models.Alert)) error {
	a, ok := r.s.alerts[id]
	if !ok {
		return repository.ErrAlertNotFound
	}
	mutate(a)
	return nil
}

var _ repository.AlertRepositoryInterface = (*alertRepo)(nil)
