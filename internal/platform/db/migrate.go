package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema bootstrap. Statements are idempotent; Migrate runs at boot before
// the first request is served.
//
// The partial guarantee "at most one active loan per book" is enforced by the
// loan ledger under the book row lock; the (book_id, return_date) index keeps
// the active-loan existence check cheap while the lock is held.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auth_accounts (
		id            VARCHAR(64)  NOT NULL,
		username      VARCHAR(64)  NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_disabled   TINYINT(1)   NOT NULL DEFAULT 0,
		created_at    TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY uq_auth_accounts_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS member (
		member_id  BIGINT       NOT NULL AUTO_INCREMENT,
		account_id VARCHAR(64)  NULL,
		name       VARCHAR(255) NOT NULL,
		birthday   DATE         NULL,
		active     TINYINT(1)   NOT NULL DEFAULT 1,
		role       ENUM('member','staff','admin') NOT NULL DEFAULT 'member',
		created_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (member_id),
		UNIQUE KEY uq_member_account (account_id),
		CONSTRAINT fk_member_account FOREIGN KEY (account_id) REFERENCES auth_accounts (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS book (
		id         VARCHAR(10)  NOT NULL,
		title      VARCHAR(255) NOT NULL,
		author     VARCHAR(255) NOT NULL,
		year       INT          NOT NULL,
		status     ENUM('AVAILABLE','LENT','WITHDRAWN','DONATED','LOST') NOT NULL DEFAULT 'AVAILABLE',
		created_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		KEY idx_book_status (status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS loan (
		loan_id     BIGINT      NOT NULL AUTO_INCREMENT,
		loan_ulid   CHAR(26)    NOT NULL,
		book_id     VARCHAR(10) NOT NULL,
		member_id   BIGINT      NOT NULL,
		issued_by   BIGINT      NOT NULL,
		received_by BIGINT      NULL,
		loan_date   DATE        NOT NULL,
		due_date    DATE        NOT NULL,
		return_date DATE        NULL,
		created_at  TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (loan_id),
		UNIQUE KEY uq_loan_ulid (loan_ulid),
		KEY idx_loan_book_active (book_id, return_date),
		KEY idx_loan_member (member_id),
		KEY idx_loan_due (due_date),
		CONSTRAINT fk_loan_book FOREIGN KEY (book_id) REFERENCES book (id),
		CONSTRAINT fk_loan_member FOREIGN KEY (member_id) REFERENCES member (member_id),
		CONSTRAINT fk_loan_issuer FOREIGN KEY (issued_by) REFERENCES member (member_id),
		CONSTRAINT fk_loan_receiver FOREIGN KEY (received_by) REFERENCES member (member_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		audit_id      BIGINT      NOT NULL AUTO_INCREMENT,
		actor_id      VARCHAR(64) NULL,
		action        VARCHAR(50) NOT NULL,
		resource_type VARCHAR(50) NULL,
		resource_id   VARCHAR(64) NULL,
		success       TINYINT(1)  NOT NULL DEFAULT 1,
		message       TEXT        NULL,
		diff          JSON        NULL,
		ip_address    VARCHAR(45) NULL,
		user_agent    TEXT        NULL,
		request_id    CHAR(36)    NULL,
		created_at    TIMESTAMP   NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (audit_id),
		KEY idx_audit_action (action),
		KEY idx_audit_created (created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

func Migrate(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
