package repository

import "database/sql"

// schemaStatements - DDL всех таблиц движка.
//
// Индексы соответствуют вторичным путям доступа: алерты по
// (server_id, user_id) и (exchange, pair), уведомления по статусу
// с порядком создания и по получателю.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
		id             BIGSERIAL PRIMARY KEY,
		user_id        BIGINT NOT NULL,
		server_id      BIGINT NOT NULL DEFAULT 0,
		type           VARCHAR(16) NOT NULL,
		exchange       VARCHAR(32) NOT NULL DEFAULT '',
		pair           VARCHAR(32) NOT NULL DEFAULT '',
		message        TEXT NOT NULL DEFAULT '',
		creation_date  TIMESTAMPTZ NOT NULL,
		listening_date TIMESTAMPTZ NOT NULL,
		last_trigger   TIMESTAMPTZ,
		from_price     NUMERIC,
		to_price       NUMERIC,
		from_date      TIMESTAMPTZ,
		to_date        TIMESTAMPTZ,
		margin         NUMERIC NOT NULL DEFAULT 0,
		repeat         SMALLINT NOT NULL DEFAULT 0,
		snooze         SMALLINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_server_user ON alerts (server_id, user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_exchange_pair ON alerts (exchange, pair)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id             BIGSERIAL PRIMARY KEY,
		creation_date  TIMESTAMPTZ NOT NULL,
		status         VARCHAR(16) NOT NULL,
		type           VARCHAR(16) NOT NULL,
		recipient_type VARCHAR(16) NOT NULL,
		recipient_id   BIGINT NOT NULL,
		user_id        BIGINT NOT NULL,
		locale         VARCHAR(8) NOT NULL DEFAULT 'en',
		fields         JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_status_creation ON notifications (status, creation_date)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_type, recipient_id)`,

	`CREATE TABLE IF NOT EXISTS user_settings (
		user_id       BIGINT PRIMARY KEY,
		locale        VARCHAR(8) NOT NULL DEFAULT 'en',
		timezone      VARCHAR(64) NOT NULL DEFAULT 'UTC',
		last_access   TIMESTAMPTZ NOT NULL,
		creation_date TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS server_settings (
		server_id     BIGINT PRIMARY KEY,
		timezone      VARCHAR(64) NOT NULL DEFAULT 'UTC',
		channel_id    BIGINT NOT NULL DEFAULT 0,
		last_access   TIMESTAMPTZ NOT NULL,
		creation_date TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema создает таблицы и индексы, если их еще нет.
// Вызывается при старте сервера после подключения к БД.
func EnsureSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
