package db

import (
	"context"
	"fmt"
	"log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS user_account (
		id SERIAL PRIMARY KEY,
		emp_no VARCHAR(20) UNIQUE NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role VARCHAR(20) DEFAULT 'STAFF',
		is_active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS user_session (
		id SERIAL PRIMARY KEY,
		emp_no VARCHAR(20) NOT NULL,
		session_id VARCHAR(64) UNIQUE NOT NULL,
		session_type VARCHAR(3) NOT NULL DEFAULT 'TCP' CHECK (session_type IN ('WEB', 'TCP')),
		client_ip VARCHAR(45),
		login_time TIMESTAMPTZ DEFAULT NOW(),
		last_activity TIMESTAMPTZ DEFAULT NOW(),
		is_active BOOLEAN DEFAULT TRUE,
		is_temporary BOOLEAN DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_session_emp_no ON user_session (emp_no)`,
	`CREATE INDEX IF NOT EXISTS idx_user_session_last_activity ON user_session (last_activity)`,
	`CREATE TABLE IF NOT EXISTS login_history (
		id SERIAL PRIMARY KEY,
		emp_no VARCHAR(20) NOT NULL,
		session_id VARCHAR(64),
		session_type VARCHAR(3) NOT NULL DEFAULT 'TCP' CHECK (session_type IN ('WEB', 'TCP')),
		client_ip VARCHAR(45),
		login_time TIMESTAMPTZ DEFAULT NOW(),
		logout_time TIMESTAMPTZ,
		session_duration INT DEFAULT 0,
		login_status VARCHAR(7) NOT NULL DEFAULT 'SUCCESS' CHECK (login_status IN ('SUCCESS', 'FAIL')),
		fail_reason VARCHAR(100),
		user_agent VARCHAR(200)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_history_emp_no ON login_history (emp_no)`,
	`CREATE INDEX IF NOT EXISTS idx_login_history_session_id ON login_history (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_login_history_login_time ON login_history (login_time)`,
	`CREATE TABLE IF NOT EXISTS barcode_detection_log (
		id SERIAL PRIMARY KEY,
		barcode VARCHAR(20) NOT NULL,
		product_name VARCHAR(100),
		confidence DECIMAL(5,2),
		image_path VARCHAR(255),
		image_filename VARCHAR(100),
		detected_at TIMESTAMPTZ DEFAULT NOW(),
		bbox_x1 INT, bbox_y1 INT, bbox_x2 INT, bbox_y2 INT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_barcode_detection_log_barcode ON barcode_detection_log (barcode)`,
	`CREATE INDEX IF NOT EXISTS idx_barcode_detection_log_detected_at ON barcode_detection_log (detected_at)`,
	`CREATE TABLE IF NOT EXISTS chat_message (
		id SERIAL PRIMARY KEY,
		sender_emp_no VARCHAR(20) NOT NULL,
		content TEXT NOT NULL,
		sent_at TIMESTAMPTZ DEFAULT NOW()
	)`,
}

// InitTables creates the session, history, detection and chat tables.
func (m *Manager) InitTables(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := m.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: schema init failed: %w", err)
		}
	}
	log.Println("db: session, history, detection and chat tables ready")
	return nil
}
