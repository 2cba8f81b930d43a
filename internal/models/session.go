package models

import "time"

// SessionType distinguishes the transport that authenticated.
type SessionType string

const (
	SessionTypeWeb SessionType = "WEB"
	SessionTypeTCP SessionType = "TCP"
)

// Login outcome values persisted in login_history.
const (
	LoginStatusSuccess = "SUCCESS"
	LoginStatusFail    = "FAIL"
)

// Session mirrors one row of user_session. A temporary session is one that
// lost a sub-second login race; it never appears in audit history and is
// deleted outright once stale.
type Session struct {
	EmpNo        string      `json:"emp_no"`
	SessionID    string      `json:"session_id"`
	SessionType  SessionType `json:"session_type"`
	ClientIP     string      `json:"client_ip"`
	LoginTime    *time.Time  `json:"login_time"`
	LastActivity *time.Time  `json:"last_activity"`
	IsActive     bool        `json:"is_active"`
	IsTemporary  bool        `json:"is_temporary"`
}

// LoginHistoryRecord mirrors one row of login_history. Append-only except
// for the logout-time/duration backfill.
type LoginHistoryRecord struct {
	EmpNo           string      `json:"emp_no"`
	SessionType     SessionType `json:"session_type"`
	ClientIP        string      `json:"client_ip"`
	LoginTime       *time.Time  `json:"login_time"`
	LogoutTime      *time.Time  `json:"logout_time"`
	DurationSeconds int         `json:"session_duration"`
	Status          string      `json:"login_status"`
	FailReason      *string     `json:"fail_reason"`
	UserAgent       *string     `json:"user_agent"`
}

// LoginStatistics summarises login_history over a day range.
type LoginStatistics struct {
	Days               int     `json:"days"`
	TotalLogins        int     `json:"total_logins"`
	FailedLogins       int     `json:"failed_logins"`
	SuccessRate        float64 `json:"success_rate"`
	AvgSessionDuration int     `json:"avg_session_duration"`
}

// ChatMessage is one persisted chat line.
type ChatMessage struct {
	SenderEmpNo string    `json:"sender_emp_no"`
	Content     string    `json:"content"`
	SentAt      time.Time `json:"sent_at"`
}
