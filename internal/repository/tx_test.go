package repository

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// ============================================================
// SQLTxManager Tests
// ============================================================

func TestTransactionalCommit(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE alerts SET margin = 0 WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	manager := NewTxManager(db)

	afterCommitRan := false
	err := manager.Transactional(func(tx Tx) error {
		tx.AfterCommit(func() { afterCommitRan = true })
		return tx.Alerts().MarginAlertBatchUpdates(func(b BatchAccumulator) {
			b.BatchID(1)
		})
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !afterCommitRan {
		t.Error("AfterCommit callback должен выполниться после коммита")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTransactionalRollback(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	manager := NewTxManager(db)

	wantErr := errors.New("boom")
	afterCommitRan := false
	err := manager.Transactional(func(tx Tx) error {
		tx.AfterCommit(func() { afterCommitRan = true })
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("ожидалась ошибка fn, получено %v", err)
	}
	if afterCommitRan {
		t.Error("AfterCommit не должен выполняться при откате")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCommitUnitPartialCommit(t *testing.T) {
	db, mock := newMock(t)

	// Две единицы работы при пороге 2: частичный коммит и новая транзакция
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	manager := NewTxManager(db)

	commits := 0
	err := manager.Transactional(func(tx Tx) error {
		tx.AfterCommit(func() { commits++ })
		if err := tx.CommitUnit(2); err != nil {
			return err
		}
		if err := tx.CommitUnit(2); err != nil {
			return err
		}
		// callback выполнился на частичном коммите, регистрируем новый
		tx.AfterCommit(func() { commits++ })
		return nil
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if commits != 2 {
		t.Errorf("commits = %d, ожидалось 2 (частичный + финальный)", commits)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCommitUnitBelowThreshold(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	manager := NewTxManager(db)

	err := manager.Transactional(func(tx Tx) error {
		// Порог не достигнут - частичного коммита нет
		return tx.CommitUnit(10)
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestChildDoesNotCommitParent(t *testing.T) {
	db, mock := newMock(t)

	// Единственные Begin/Commit принадлежат родителю
	mock.ExpectBegin()
	mock.ExpectCommit()

	manager := NewTxManager(db)

	err := manager.Transactional(func(tx Tx) error {
		return tx.Child(func(child Tx) error {
			// Коммит-единицы ребенка не фиксируют родителя
			if err := child.CommitUnit(1); err != nil {
				return err
			}
			return child.CommitUnit(1)
		})
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestChildAfterCommitRunsWithParent(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	manager := NewTxManager(db)

	ran := false
	err := manager.Transactional(func(tx Tx) error {
		return tx.Child(func(child Tx) error {
			child.AfterCommit(func() { ran = true })
			return nil
		})
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !ran {
		t.Error("AfterCommit ребенка должен выполниться на коммите родителя")
	}
}
