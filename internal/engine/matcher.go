package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"spotalert/internal/config"
	"spotalert/internal/exchange"
	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/pkg/retry"
	"spotalert/pkg/utils"
)

// candleRetryConfig повторяет запрос свечей только при транзиентных
// ошибках биржи (сеть, 429, 5xx). Постоянные ошибки (неизвестная пара)
// пробрасываются сразу.
var candleRetryConfig = retry.Config{
	MaxRetries:   3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2.0,
	JitterFactor: 0.2,
	RetryIf: func(err error) bool {
		var exErr *exchange.ExchangeError
		return errors.As(err, &exErr) && exErr.Transient
	},
}

// Notifier - интерфейс пинка сервиса доставки после коммита партии
// совпадений.
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type Notifier interface {
	Notify()
}

// Broadcaster - опциональный приемник сводок циклов для админ-панели
// (WebSocket hub)
type Broadcaster interface {
	BroadcastCycleSummary(pairsChecked, alertsFired int, durationMS float64)
}

// Matcher - периодический движок матчинга алертов.
//
// Каждый цикл:
//  1. Спрашивает у DAO набор (exchange, pair) комбинаций с пригодными
//     к срабатыванию алертами
//  2. Для каждой пары запрашивает свежие свечи у биржи
//  3. Стримит кандидатов и проверяет типоспецифичный предикат
//  4. Применяет совпадения одной batch-мутацией и ставит уведомления
//     в очередь в той же транзакции
//
// Отказ одной (exchange, pair) изолирован и не прерывает цикл для
// остальных пар. Retention sweep'ы идут отдельным, более редким тикером.
type Matcher struct {
	cfg         config.EngineConfig
	txm         repository.TxManager
	exchanges   map[string]exchange.Exchange
	notifier    Notifier
	broadcaster Broadcaster
	log         *utils.Logger
}

// NewMatcher создает движок матчинга
func NewMatcher(cfg config.EngineConfig, txm repository.TxManager, exchanges map[string]exchange.Exchange, log *utils.Logger) *Matcher {
	return &Matcher{
		cfg:       cfg,
		txm:       txm,
		exchanges: exchanges,
		log:       log.WithComponent("matcher"),
	}
}

// SetNotifier устанавливает получателя пинков о новых уведомлениях.
//
// Вызывается после инициализации сервиса доставки в main.go:
//
//	matcher := engine.NewMatcher(cfg.Engine, txm, exchanges, log)
//	matcher.SetNotifier(dispatcher)
func (m *Matcher) SetNotifier(n Notifier) {
	m.notifier = n
}

// SetBroadcaster устанавливает приемник сводок циклов (опционально)
func (m *Matcher) SetBroadcaster(b Broadcaster) {
	m.broadcaster = b
}

// Run запускает циклы матчинга и retention sweep'ы до отмены контекста
func (m *Matcher) Run(ctx context.Context) error {
	checkTicker := time.NewTicker(m.cfg.CheckPeriod)
	retentionTicker := time.NewTicker(m.cfg.RetentionCheckPeriod)
	defer checkTicker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-checkTicker.C:
			m.RunCycle(ctx, time.Now().UTC())
		case <-retentionTicker.C:
			m.RunRetention(time.Now().UTC())
		}
	}
}

// RunCycle выполняет один цикл проверки всех пригодных алертов.
// now передается явно для детерминированных тестов.
func (m *Matcher) RunCycle(ctx context.Context, now time.Time) {
	start := time.Now()

	var pairs map[string][]string
	err := m.txm.Transactional(func(tx repository.Tx) error {
		var err error
		pairs, err = tx.Alerts().GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange(now, m.cfg.CheckPeriod)
		return err
	})
	if err != nil {
		m.log.Error("Eligible pair discovery failed", utils.Err(err))
		return
	}

	total := 0
	for _, pairList := range pairs {
		total += len(pairList)
	}
	EligiblePairs.Set(float64(total))

	firedTotal := 0
	for exchName, pairList := range pairs {
		for _, pair := range pairList {
			fired, err := m.checkPair(ctx, now, exchName, pair)
			if err != nil {
				// Изоляция: отказ одной пары не прерывает цикл
				m.log.Error("Pair check failed",
					utils.Exchange(exchName), utils.Pair(pair), utils.Err(err))
				RecordPairCheckFailure(exchName)
			}
			firedTotal += fired
			if ctx.Err() != nil {
				return
			}
		}
	}

	durationMS := float64(time.Since(start).Milliseconds())
	CycleDuration.Observe(time.Since(start).Seconds())
	if m.broadcaster != nil {
		m.broadcaster.BroadcastCycleSummary(total, firedTotal, durationMS)
	}
	m.log.Debug("Matching cycle finished",
		utils.Count(total), utils.Latency(durationMS))
}

// checkPair проверяет все пригодные алерты одной (exchange, pair)
// комбинации против свежей свечи.
//
// Remainder-алерты группируются DAO под пустым exchange и проверяются
// без запроса свечей.
func (m *Matcher) checkPair(ctx context.Context, now time.Time, exchName, pair string) (int, error) {
	var candle *exchange.Candlestick
	if exchName != "" {
		ex, ok := m.exchanges[exchName]
		if !ok {
			return 0, fmt.Errorf("no client for exchange %q", exchName)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.CandleTimeout)
		defer cancel()

		fetchStart := time.Now()
		var candles []*exchange.Candlestick
		err := retry.Do(fetchCtx, func() error {
			var fetchErr error
			candles, fetchErr = ex.GetCandlesticks(fetchCtx, pair, m.cfg.CandleInterval, m.cfg.CandleLimit)
			return fetchErr
		}, candleRetryConfig)
		RecordCandleFetch(exchName, float64(time.Since(fetchStart).Milliseconds()))
		if err != nil {
			return 0, err
		}
		if len(candles) == 0 {
			return 0, nil
		}
		// Свечи приходят старые первыми, предикаты оцениваются по свежей
		candle = candles[len(candles)-1]
	}

	fired := 0
	err := m.txm.Transactional(func(tx repository.Tx) error {
		var matched, margin []*models.Alert

		err := tx.Alerts().FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange(
			now, exchName, pair, m.cfg.CheckPeriod,
			func(a *models.Alert) error {
				outcome := Evaluate(a, candle, now, m.cfg.TrendCloseOnly)
				RecordAlertOutcome(string(a.Type), outcome)
				switch outcome {
				case OutcomeMatched:
					matched = append(matched, a)
				case OutcomeMargin:
					margin = append(margin, a)
				}
				return nil
			})
		if err != nil {
			return err
		}
		if len(matched) == 0 && len(margin) == 0 {
			return nil
		}
		fired = len(matched) + len(margin)

		// Пользовательский текст опущен в hot-path выборке, догружаем
		// только для сработавших
		messages, err := tx.Alerts().GetMessagesByID(alertIDs(matched, margin))
		if err != nil {
			return err
		}

		// Сработавшие remainder'ы удаляются сразу: напоминание одноразовое,
		// repeat/snooze для этого типа не имеют смысла
		var fired, reminders []int64
		for _, a := range matched {
			if a.Type == models.AlertTypeRemainder {
				reminders = append(reminders, a.ID)
			} else {
				fired = append(fired, a.ID)
			}
		}

		if len(fired) > 0 {
			err = tx.Alerts().MatchedAlertBatchUpdates(now, func(b repository.BatchAccumulator) {
				for _, id := range fired {
					b.BatchID(id)
				}
			})
			if err != nil {
				return err
			}
		}
		if len(reminders) > 0 {
			err = tx.Alerts().AlertBatchDeletes(func(b repository.BatchAccumulator) {
				for _, id := range reminders {
					b.BatchID(id)
				}
			})
			if err != nil {
				return err
			}
		}
		if len(margin) > 0 {
			err = tx.Alerts().MarginAlertBatchUpdates(func(b repository.BatchAccumulator) {
				for _, a := range margin {
					b.BatchID(a.ID)
				}
			})
			if err != nil {
				return err
			}
		}

		for _, a := range matched {
			if err := m.enqueueNotification(tx, a, matchedNotificationType(a), candle, now, messages[a.ID]); err != nil {
				return err
			}
		}
		for _, a := range margin {
			if err := m.enqueueNotification(tx, a, models.NotificationTypeMargin, candle, now, messages[a.ID]); err != nil {
				return err
			}
		}

		if m.notifier != nil {
			// Пинок доставки строго после durable-коммита партии
			tx.AfterCommit(m.notifier.Notify)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return fired, nil
}

// enqueueNotification ставит уведомление о срабатывании в очередь в той же
// транзакции, что и мутация алерта
func (m *Matcher) enqueueNotification(tx repository.Tx, a *models.Alert, ntype models.NotificationType, candle *exchange.Candlestick, now time.Time, message string) error {
	fields := map[string]string{
		models.FieldAlertID:   strconv.FormatInt(a.ID, 10),
		models.FieldAlertType: string(a.Type),
		models.FieldMatchDate: now.Format(time.RFC3339),
	}
	if candle != nil {
		fields[models.FieldExchange] = a.Exchange
		fields[models.FieldPair] = a.Pair
		fields[models.FieldPrice] = candle.Close.String()
	}
	if message != "" {
		fields[models.FieldMessage] = message
	}

	notif := &models.Notification{
		Type:   ntype,
		UserID: a.UserID,
		Fields: fields,
	}
	if a.IsPrivate() {
		notif.RecipientType = models.RecipientTypeUser
		notif.RecipientID = a.UserID
	} else {
		notif.RecipientType = models.RecipientTypeServer
		notif.RecipientID = a.ServerID
	}

	// Локаль владельца; payload отвязан от Alert, к моменту отправки
	// алерт может быть уже удален
	settings, err := tx.UserSettings().Get(a.UserID)
	switch {
	case err == nil:
		notif.Locale = settings.Locale
	case !errors.Is(err, repository.ErrSettingsNotFound):
		return err
	}

	if err := tx.Notifications().Create(notif); err != nil {
		return err
	}
	RecordNotificationCreated(string(ntype))
	return nil
}

// matchedNotificationType возвращает тип уведомления для совпадения
func matchedNotificationType(a *models.Alert) models.NotificationType {
	if a.Type == models.AlertTypeRemainder {
		return models.NotificationTypeRemainder
	}
	return models.NotificationTypeMatching
}

// alertIDs собирает id всех сработавших алертов
func alertIDs(matched, margin []*models.Alert) []int64 {
	ids := make([]int64, 0, len(matched)+len(margin))
	for _, a := range matched {
		ids = append(ids, a.ID)
	}
	for _, a := range margin {
		ids = append(ids, a.ID)
	}
	return ids
}
