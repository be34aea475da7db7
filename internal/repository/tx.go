package repository

import (
	"database/sql"
	"sync"
)

// SQLTxManager открывает транзакционные контексты над *sql.DB
type SQLTxManager struct {
	db *sql.DB
}

// NewTxManager создает новый менеджер транзакций
func NewTxManager(db *sql.DB) *SQLTxManager {
	return &SQLTxManager{db: db}
}

// Transactional выполняет fn в транзакции.
//
// При nil от fn транзакция коммитится и запускаются AfterCommit
// callbacks; при ошибке - откат, callbacks отбрасываются.
func (m *SQLTxManager) Transactional(fn func(Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	c := &sqlTx{db: m.db, tx: tx}

	if err := fn(c); err != nil {
		c.mu.Lock()
		_ = c.tx.Rollback()
		c.afterCommit = nil
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	err = c.tx.Commit()
	callbacks := c.afterCommit
	c.afterCommit = nil
	c.mu.Unlock()
	if err != nil {
		return err
	}

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// sqlTx - транзакционный контекст над *sql.Tx.
//
// Сам реализует DBTX, делегируя в ТЕКУЩУЮ транзакцию: после частичного
// коммита (CommitUnit) уже выданные репозитории продолжают работать с
// новой транзакцией без пересоздания.
type sqlTx struct {
	db *sql.DB

	mu          sync.Mutex
	tx          *sql.Tx
	afterCommit []func()
	units       int
}

// current возвращает активную транзакцию
func (c *sqlTx) current() *sql.Tx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx
}

func (c *sqlTx) Exec(query string, args ...interface{}) (sql.Result, error) {
	return c.current().Exec(query, args...)
}

func (c *sqlTx) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return c.current().Query(query, args...)
}

func (c *sqlTx) QueryRow(query string, args ...interface{}) *sql.Row {
	return c.current().QueryRow(query, args...)
}

// Alerts возвращает репозиторий алертов, связанный с этим контекстом
func (c *sqlTx) Alerts() AlertRepositoryInterface {
	return NewAlertRepository(c)
}

// Notifications возвращает репозиторий уведомлений контекста
func (c *sqlTx) Notifications() NotificationRepositoryInterface {
	return NewNotificationRepository(c)
}

// UserSettings возвращает репозиторий настроек пользователей контекста
func (c *sqlTx) UserSettings() UserSettingsRepositoryInterface {
	return NewUserSettingsRepository(c)
}

// ServerSettings возвращает репозиторий настроек серверов контекста
func (c *sqlTx) ServerSettings() ServerSettingsRepositoryInterface {
	return NewServerSettingsRepository(c)
}

// AfterCommit регистрирует callback, выполняемый после успешного коммита
func (c *sqlTx) AfterCommit(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterCommit = append(c.afterCommit, fn)
}

// CommitUnit учитывает единицу работы и при накоплении n единиц
// фиксирует текущую транзакцию, запускает AfterCommit callbacks и
// открывает новую транзакцию на том же контексте.
//
// n <= 0 отключает частичные коммиты (единицы только накапливаются).
func (c *sqlTx) CommitUnit(n int) error {
	c.mu.Lock()
	c.units++
	if n <= 0 || c.units < n {
		c.mu.Unlock()
		return nil
	}

	if err := c.tx.Commit(); err != nil {
		c.mu.Unlock()
		return err
	}
	callbacks := c.afterCommit
	c.afterCommit = nil
	c.units = 0

	tx, err := c.db.Begin()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.tx = tx
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// Child выполняет fn в дочернем контексте на соединении родителя.
// Единицы работы ребенка не фиксируют родительскую транзакцию.
func (c *sqlTx) Child(fn func(Tx) error) error {
	return fn(&childTx{parent: c})
}

// childTx - дочерний контекст: разделяет транзакцию и AfterCommit
// родителя, но его CommitUnit никогда не коммитит
type childTx struct {
	parent *sqlTx
	units  int
	mu     sync.Mutex
}

func (c *childTx) Alerts() AlertRepositoryInterface                 { return c.parent.Alerts() }
func (c *childTx) Notifications() NotificationRepositoryInterface   { return c.parent.Notifications() }
func (c *childTx) UserSettings() UserSettingsRepositoryInterface    { return c.parent.UserSettings() }
func (c *childTx) ServerSettings() ServerSettingsRepositoryInterface { return c.parent.ServerSettings() }
func (c *childTx) AfterCommit(fn func())                            { c.parent.AfterCommit(fn) }

func (c *childTx) CommitUnit(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units++
	return nil
}

func (c *childTx) Child(fn func(Tx) error) error {
	return fn(&childTx{parent: c.parent})
}

var _ Tx = (*sqlTx)(nil)
var _ Tx = (*childTx)(nil)
var _ TxManager = (*SQLTxManager)(nil)
var _ DBTX = (*sqlTx)(nil)
