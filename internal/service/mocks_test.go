package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"spotalert/internal/config"
	"spotalert/internal/discord"
	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/internal/repository/memory"
	"spotalert/pkg/utils"
)

// ============================================================
// Тестовые заглушки
// ============================================================

type sentMessage struct {
	userID    int64
	serverID  int64
	channelID int64
	content   string
}

// fakeSender - отправитель со сценарными ошибками по получателям.
// Ошибки из *ErrsOnce снимаются после первой попытки.
type fakeSender struct {
	mu           sync.Mutex
	sent         []sentMessage
	userErrs     map[int64]error
	serverErrs   map[int64]error
	userErrsOnce map[int64]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		userErrs:     make(map[int64]error),
		serverErrs:   make(map[int64]error),
		userErrsOnce: make(map[int64]error),
	}
}

func (f *fakeSender) SendToUser(ctx context.Context, userID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.userErrsOnce[userID]; ok {
		delete(f.userErrsOnce, userID)
		return err
	}
	if err, ok := f.userErrs[userID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{userID: userID, content: content})
	return nil
}

func (f *fakeSender) SendToChannel(ctx context.Context, serverID, channelID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.serverErrs[serverID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{serverID: serverID, channelID: channelID, content: content})
	return nil
}

func (f *fakeSender) Close() error { return nil }

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) userSendCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if m.userID == userID {
			n++
		}
	}
	return n
}

func deliveryErr(kind discord.FailureKind) error {
	return &discord.DeliveryError{Kind: kind, Message: "scripted failure"}
}

// ============================================================
// Общие хелперы тестов сервисов
// ============================================================

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

func testDeliveryConfig() config.DeliveryConfig {
	return config.DeliveryConfig{
		BatchSize:            50,
		DebounceWindow:       time.Millisecond,
		RetryPeriod:          time.Hour,
		SendTimeout:          time.Second,
		RetentionPeriod:      72 * time.Hour,
		RetentionCheckPeriod: time.Hour,
		CommitEvery:          100,
	}
}

func newTestDelivery(t *testing.T) (*DeliveryService, *memory.Store, *fakeSender) {
	t.Helper()
	store := memory.NewStore()
	sender := newFakeSender()
	svc := NewDeliveryService(testDeliveryConfig(), store, sender, testLogger())
	return svc, store, sender
}

func seedNotification(t *testing.T, store *memory.Store, n *models.Notification) int64 {
	t.Helper()
	err := store.Transactional(func(tx repository.Tx) error {
		return tx.Notifications().Create(n)
	})
	if err != nil {
		t.Fatalf("Failed to seed notification: %v", err)
	}
	return n.ID
}

func seedAlert(t *testing.T, store *memory.Store, a *models.Alert) int64 {
	t.Helper()
	err := store.Transactional(func(tx repository.Tx) error {
		return tx.Alerts().Create(a)
	})
	if err != nil {
		t.Fatalf("Failed to seed alert: %v", err)
	}
	return a.ID
}

func allNotifications(t *testing.T, store *memory.Store) []*models.Notification {
	t.Helper()
	var notifs []*models.Notification
	err := store.Transactional(func(tx repository.Tx) error {
		var err error
		notifs, err = tx.Notifications().GetRecent(1000)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to load notifications: %v", err)
	}
	return notifs
}

func notificationByID(t *testing.T, store *memory.Store, id int64) *models.Notification {
	t.Helper()
	for _, n := range allNotifications(t, store) {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func userNotification(t *testing.T, store *memory.Store, ntype models.NotificationType, userID int64) *models.Notification {
	t.Helper()
	for _, n := range allNotifications(t, store) {
		if n.Type == ntype && n.RecipientType == models.RecipientTypeUser && n.RecipientID == userID {
			return n
		}
	}
	return nil
}

// waitFor опрашивает условие до таймаута: асинхронные раунды доставки
// завершаются в фоне
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for condition: %s", msg)
}
