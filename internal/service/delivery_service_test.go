package service

import (
	"testing"
	"time"

	"spotalert/internal/discord"
	"spotalert/internal/models"
	"spotalert/internal/repository"
)

func matchingNotification(userID int64) *models.Notification {
	return &models.Notification{
		Type:          models.NotificationTypeMatching,
		RecipientType: models.RecipientTypeUser,
		RecipientID:   userID,
		UserID:        userID,
		Locale:        "en",
		Fields: map[string]string{
			models.FieldExchange:  "binance",
			models.FieldPair:      "BTCUSDT",
			models.FieldPrice:     "65000",
			models.FieldMatchDate: "2025-06-01T12:00:00Z",
		},
	}
}

func serverNotification(serverID, userID int64) *models.Notification {
	n := matchingNotification(userID)
	n.RecipientType = models.RecipientTypeServer
	n.RecipientID = serverID
	return n
}

// ============================================================
// Раунд доставки
// ============================================================

func TestRoundDeliversAndRemoves(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	seedNotification(t, store, matchingNotification(10))
	seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	if got := sender.sendCount(); got != 2 {
		t.Errorf("Expected 2 sends, got %d", got)
	}
	count, err := svc.NotificationCount()
	if err != nil {
		t.Fatalf("NotificationCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected delivered notifications removed, %d remain", count)
	}
}

func TestRoundSkipsAlreadyClaimed(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	// Уведомление уже захвачено другим раундом
	n := matchingNotification(10)
	n.Status = models.NotificationStatusSending
	seedNotification(t, store, n)

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	if got := sender.sendCount(); got != 0 {
		t.Errorf("Claimed notification must not be re-sent, got %d sends", got)
	}
}

func TestTransientFailureReturnsToNew(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	sender.userErrsOnce[10] = deliveryErr(discord.FailureTransient)
	id := seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	n := notificationByID(t, store, id)
	if n == nil {
		t.Fatal("Notification must survive a transient failure")
	}
	if n.Status != models.NotificationStatusNew {
		t.Errorf("Expected status NEW after transient failure, got %s", n.Status)
	}

	// Повторный раунд доставляет успешно
	if err := svc.RunRound(); err != nil {
		t.Fatalf("Retry round failed: %v", err)
	}
	if got := sender.sendCount(); got != 1 {
		t.Errorf("Expected 1 successful send, got %d", got)
	}
	if n := notificationByID(t, store, id); n != nil {
		t.Errorf("Notification must be removed after delivery, status %s", n.Status)
	}
}

func TestBlockedRecipientParked(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	sender.userErrs[10] = deliveryErr(discord.FailureBlocked)
	id := seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	n := notificationByID(t, store, id)
	if n == nil || n.Status != models.NotificationStatusBlocked {
		t.Fatalf("Expected BLOCKED notification, got %+v", n)
	}

	// BLOCKED не попадает в следующие раунды
	if err := svc.RunRound(); err != nil {
		t.Fatalf("Second round failed: %v", err)
	}
	if got := sender.sendCount(); got != 0 {
		t.Errorf("Blocked notification must not be retried, got %d sends", got)
	}
}

func TestUnblockUserResumesDelivery(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	sender.userErrs[10] = deliveryErr(discord.FailureBlocked)
	id := seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	// Получатель снова открыл личные сообщения
	sender.mu.Lock()
	delete(sender.userErrs, 10)
	sender.mu.Unlock()

	unblocked, err := svc.UnblockUser(10)
	if err != nil {
		t.Fatalf("UnblockUser failed: %v", err)
	}
	if unblocked != 1 {
		t.Errorf("Expected 1 unblocked notification, got %d", unblocked)
	}

	waitFor(t, 2*time.Second, func() bool {
		return notificationByID(t, store, id) == nil
	}, "unblocked notification delivered and removed")

	if got := sender.userSendCount(10); got != 1 {
		t.Errorf("Expected 1 send after unblock, got %d", got)
	}
}

func TestUnblockUserWithoutBlocked(t *testing.T) {
	svc, _, _ := newTestDelivery(t)

	unblocked, err := svc.UnblockUser(42)
	if err != nil {
		t.Fatalf("UnblockUser failed: %v", err)
	}
	if unblocked != 0 {
		t.Errorf("Expected 0 unblocked, got %d", unblocked)
	}
}

func TestRecipientGoneRemoved(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	sender.userErrs[10] = deliveryErr(discord.FailureRecipientGone)
	id := seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	if n := notificationByID(t, store, id); n != nil {
		t.Errorf("Notification for a gone recipient must be dropped, got status %s", n.Status)
	}
}

func TestDMAccessRevokedTreatedAsBlocked(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	// 403 в личном канале означает закрытые DM, а не отозванный сервер
	sender.userErrs[10] = deliveryErr(discord.FailureAccessRevoked)
	id := seedNotification(t, store, matchingNotification(10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	n := notificationByID(t, store, id)
	if n == nil || n.Status != models.NotificationStatusBlocked {
		t.Fatalf("Expected BLOCKED for revoked DM, got %+v", n)
	}
}

// ============================================================
// Миграция при отзыве доступа к серверу
// ============================================================

func TestServerAccessRevokedMigrates(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	sender.serverErrs[555] = deliveryErr(discord.FailureAccessRevoked)

	a1 := seedAlert(t, store, &models.Alert{
		Type: models.AlertTypeRange, Exchange: "binance", Pair: "BTCUSDT",
		UserID: 10, ServerID: 555,
	})
	a2 := seedAlert(t, store, &models.Alert{
		Type: models.AlertTypeRange, Exchange: "binance", Pair: "ETHUSDT",
		UserID: 10, ServerID: 555,
	})

	id := seedNotification(t, store, serverNotification(555, 10))

	if err := svc.RunRound(); err != nil {
		t.Fatalf("RunRound failed: %v", err)
	}

	// Алерты владельца переехали на личный канал
	err := store.Transactional(func(tx repository.Tx) error {
		for _, aid := range []int64{a1, a2} {
			a, err := tx.Alerts().GetByID(aid)
			if err != nil {
				return err
			}
			if a.ServerID != models.ServerIDPrivate {
				t.Errorf("Alert %d must migrate to private channel, server_id=%d", aid, a.ServerID)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to verify migrated alerts: %v", err)
	}

	// MIGRATED уведомление владельцу с числом перенесенных алертов
	migrated := userNotification(t, store, models.NotificationTypeMigrated, 10)
	var migratedID int64
	if migrated == nil {
		// Могло уже быть доставлено фоновым раундом
		if sender.userSendCount(10) == 0 {
			t.Fatal("Expected MIGRATED notification for the owner")
		}
	} else {
		migratedID = migrated.ID
		if got := migrated.Fields[models.FieldCount]; got != "2" {
			t.Errorf("Expected migrated count 2, got %q", got)
		}
	}

	// Ретаргет и самопинок: все переехавшие уведомления уходят в личный
	// канал фоновым раундом
	waitFor(t, 2*time.Second, func() bool {
		return notificationByID(t, store, id) == nil &&
			(migratedID == 0 || notificationByID(t, store, migratedID) == nil)
	}, "retargeted notifications delivered to the private channel")

	if got := sender.userSendCount(10); got < 2 {
		t.Errorf("Expected at least 2 private sends (original + MIGRATED), got %d", got)
	}
}

// ============================================================
// Notify и retention
// ============================================================

func TestNotifyCoalescesKicks(t *testing.T) {
	svc, store, sender := newTestDelivery(t)

	seedNotification(t, store, matchingNotification(10))

	svc.Notify()
	svc.Notify()
	svc.Notify()

	waitFor(t, 2*time.Second, func() bool {
		return sender.sendCount() == 1
	}, "coalesced kicks produce a single delivery")

	count, err := svc.NotificationCount()
	if err != nil {
		t.Fatalf("NotificationCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty queue after delivery, %d remain", count)
	}
}

func TestRetentionSweepsOldNotifications(t *testing.T) {
	svc, store, _ := newTestDelivery(t)

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	old := matchingNotification(10)
	old.Status = models.NotificationStatusBlocked
	old.CreationDate = now.Add(-100 * time.Hour)
	oldID := seedNotification(t, store, old)

	recent := matchingNotification(10)
	recent.CreationDate = now.Add(-time.Hour)
	recentID := seedNotification(t, store, recent)

	svc.RunRetention(now)

	if n := notificationByID(t, store, oldID); n != nil {
		t.Error("Notification beyond the retention window must be swept")
	}
	if n := notificationByID(t, store, recentID); n == nil {
		t.Error("Recent notification must survive the retention sweep")
	}
}

func TestRecentNotificationsLimit(t *testing.T) {
	svc, store, _ := newTestDelivery(t)

	for i := 0; i < 5; i++ {
		seedNotification(t, store, matchingNotification(int64(i + 1)))
	}

	notifs, err := svc.RecentNotifications(3)
	if err != nil {
		t.Fatalf("RecentNotifications failed: %v", err)
	}
	if len(notifs) != 3 {
		t.Errorf("Expected 3 notifications, got %d", len(notifs))
	}

	count, err := svc.NotificationCount()
	if err != nil {
		t.Fatalf("NotificationCount failed: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected total count 5, got %d", count)
	}
}
