package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"api-prodmon/internal/config"
	"api-prodmon/internal/models"
)

// Login failure reasons recorded in the audit history.
const (
	FailReasonNoAccount      = "존재하지_않는_계정"
	FailReasonInactive       = "비활성화된_계정"
	FailReasonBadPassword    = "비밀번호_불일치"
	FailReasonDuplicateLogin = "중복_로그인"
	FailReasonTimeout        = "타임아웃"
)

// Sessions implements credential verification, session issuance and the
// race reconciliation between near-simultaneous logins for one principal.
type Sessions struct {
	m               *Manager
	raceWindow      time.Duration // younger durable sessions are demoted to temporary
	duplicateGrace  time.Duration // older durable sessions are logged out as duplicates
	idleTimeout     time.Duration
	cleanupInterval time.Duration
}

func NewSessions(m *Manager, cfg config.SessionConfig) *Sessions {
	return &Sessions{
		m:               m,
		raceWindow:      cfg.GetRaceWindow(),
		duplicateGrace:  cfg.GetDuplicateGrace(),
		idleTimeout:     cfg.GetIdleTimeout(),
		cleanupInterval: cfg.GetCleanupInterval(),
	}
}

// VerifyUser authenticates and issues a new durable session. It fails
// closed: any internal error reads as a denied login. Every failed attempt
// leaves a FAIL history row; a successful one leaves exactly one SUCCESS
// row keyed to the new session id.
//
// Concurrent-login reconciliation on success, all in one transaction:
//   - temporary sessions for this principal+type are deleted outright
//   - durable active sessions older than the duplicate grace are logged
//     out and their history backfilled with reason 중복_로그인
//   - durable active sessions younger than the race window are demoted to
//     temporary and their history rows removed: they never counted
func (s *Sessions) VerifyUser(ctx context.Context, empNo, password, clientIP string, sessionType models.SessionType) (ok bool, role string, sessionID string) {
	passwordHash, isActive, accountRole, found, err := lookupAccount(ctx, s.m, empNo)
	if err != nil {
		log.Printf("[AUTH] ❌ account lookup failed: %v", err)
		return false, "", ""
	}
	if !found {
		s.saveFailHistory(ctx, empNo, clientIP, sessionType, FailReasonNoAccount)
		return false, "", ""
	}

	if !isActive {
		s.saveFailHistory(ctx, empNo, clientIP, sessionType, FailReasonInactive)
		return false, "", ""
	}

	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)) != nil {
		s.saveFailHistory(ctx, empNo, clientIP, sessionType, FailReasonBadPassword)
		return false, "", ""
	}

	tx, err := s.m.Pool().Begin(ctx)
	if err != nil {
		log.Printf("[AUTH] ❌ begin failed: %v", err)
		return false, "", ""
	}
	defer tx.Rollback(ctx)

	newSessionID, err := s.reconcileAndIssue(ctx, tx, empNo, clientIP, sessionType)
	if err != nil {
		log.Printf("[AUTH] ❌ %v", err)
		return false, "", ""
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("[AUTH] ❌ commit failed: %v", err)
		return false, "", ""
	}

	if accountRole == nil || *accountRole == "" {
		role = "STAFF"
	} else {
		role = strings.ToUpper(*accountRole)
	}
	return true, role, newSessionID
}

// lookupAccount fetches the stored credentials for one principal. A missing
// account comes back as found=false with a nil error; any other failure is
// transient and must not be recorded as an audit event.
func lookupAccount(ctx context.Context, q querier, empNo string) (passwordHash string, isActive bool, role *string, found bool, err error) {
	err = q.QueryRow(ctx,
		`SELECT password_hash, is_active, role FROM user_account WHERE emp_no = $1 LIMIT 1`,
		empNo,
	).Scan(&passwordHash, &isActive, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil, false, nil
	}
	if err != nil {
		return "", false, nil, false, err
	}
	return passwordHash, isActive, role, true, nil
}

// reconcileAndIssue performs the concurrent-login reconciliation and inserts
// the new durable session plus its SUCCESS history row. q is the enclosing
// transaction; every statement either runs in it or the whole login fails.
func (s *Sessions) reconcileAndIssue(ctx context.Context, q querier, empNo, clientIP string, sessionType models.SessionType) (string, error) {
	// Drop leftovers of prior races.
	if _, err := q.Exec(ctx,
		`DELETE FROM user_session
		 WHERE emp_no = $1 AND session_type = $2 AND is_temporary`,
		empNo, sessionType,
	); err != nil {
		return "", fmt.Errorf("temporary cleanup failed: %w", err)
	}

	// Durable sessions past the grace window: this login supersedes them.
	oldRows, err := q.Query(ctx,
		`SELECT session_id, login_time FROM user_session
		 WHERE emp_no = $1 AND session_type = $2
		   AND is_active AND NOT is_temporary
		   AND login_time < NOW() - make_interval(secs => $3)`,
		empNo, sessionType, s.duplicateGrace.Seconds(),
	)
	if err != nil {
		return "", fmt.Errorf("duplicate lookup failed: %w", err)
	}
	type oldSession struct {
		id        string
		loginTime time.Time
	}
	var superseded []oldSession
	for oldRows.Next() {
		var old oldSession
		if err := oldRows.Scan(&old.id, &old.loginTime); err != nil {
			oldRows.Close()
			return "", fmt.Errorf("duplicate scan failed: %w", err)
		}
		superseded = append(superseded, old)
	}
	oldRows.Close()

	now := time.Now()
	for _, old := range superseded {
		duration := int(now.Sub(old.loginTime).Seconds())
		if _, err := q.Exec(ctx,
			`UPDATE login_history
			 SET logout_time = $1, session_duration = $2, fail_reason = $3
			 WHERE session_id = $4 AND logout_time IS NULL`,
			now, duration, FailReasonDuplicateLogin, old.id,
		); err != nil {
			return "", fmt.Errorf("duplicate backfill failed: %w", err)
		}
	}
	if _, err := q.Exec(ctx,
		`UPDATE user_session SET is_active = FALSE
		 WHERE emp_no = $1 AND session_type = $2
		   AND is_active AND NOT is_temporary
		   AND login_time < NOW() - make_interval(secs => $3)`,
		empNo, sessionType, s.duplicateGrace.Seconds(),
	); err != nil {
		return "", fmt.Errorf("duplicate logout failed: %w", err)
	}

	// Durable sessions inside the race window lost a near-simultaneous
	// race: demote them to temporary and scrub their history rows so the
	// audit trail shows a single real login.
	racedRows, err := q.Query(ctx,
		`SELECT session_id FROM user_session
		 WHERE emp_no = $1 AND session_type = $2
		   AND is_active AND NOT is_temporary
		   AND login_time >= NOW() - make_interval(secs => $3)
		 ORDER BY login_time DESC`,
		empNo, sessionType, s.raceWindow.Seconds(),
	)
	if err != nil {
		return "", fmt.Errorf("race lookup failed: %w", err)
	}
	var raced []string
	for racedRows.Next() {
		var id string
		if err := racedRows.Scan(&id); err != nil {
			racedRows.Close()
			return "", fmt.Errorf("race scan failed: %w", err)
		}
		raced = append(raced, id)
	}
	racedRows.Close()

	for _, id := range raced {
		if _, err := q.Exec(ctx,
			`UPDATE user_session SET is_temporary = TRUE WHERE session_id = $1`, id,
		); err != nil {
			return "", fmt.Errorf("race demotion failed: %w", err)
		}
		if _, err := q.Exec(ctx,
			`DELETE FROM login_history WHERE session_id = $1`, id,
		); err != nil {
			return "", fmt.Errorf("race history scrub failed: %w", err)
		}
		log.Printf("[AUTH] demoted raced session to temporary: %.16s... (history removed)", id)
	}

	newSessionID := NewSessionToken(empNo, string(sessionType))
	if _, err := q.Exec(ctx,
		`INSERT INTO user_session (emp_no, session_id, session_type, client_ip, is_temporary)
		 VALUES ($1, $2, $3, $4, FALSE)`,
		empNo, newSessionID, sessionType, clientIP,
	); err != nil {
		return "", fmt.Errorf("session insert failed: %w", err)
	}

	if err := saveLoginHistory(ctx, q, historyEntry{
		empNo:       empNo,
		sessionID:   newSessionID,
		sessionType: sessionType,
		clientIP:    clientIP,
		status:      models.LoginStatusSuccess,
	}); err != nil {
		return "", fmt.Errorf("history insert failed: %w", err)
	}

	return newSessionID, nil
}

type historyEntry struct {
	empNo       string
	sessionID   string
	sessionType models.SessionType
	clientIP    string
	status      string
	failReason  string
}

// saveLoginHistory inserts one audit row. SUCCESS rows are guarded against
// duplicate inserts for the same session id, making the call idempotent.
func saveLoginHistory(ctx context.Context, q querier, entry historyEntry) error {
	if entry.status == models.LoginStatusSuccess && entry.sessionID != "" {
		var existing int
		if err := q.QueryRow(ctx,
			`SELECT COUNT(*) FROM login_history WHERE session_id = $1`,
			entry.sessionID,
		).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
	}

	var sessionID, failReason *string
	if entry.sessionID != "" {
		sessionID = &entry.sessionID
	}
	if entry.failReason != "" {
		failReason = &entry.failReason
	}

	_, err := q.Exec(ctx,
		`INSERT INTO login_history (emp_no, session_id, session_type, client_ip, login_status, fail_reason)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.empNo, sessionID, entry.sessionType, entry.clientIP, entry.status, failReason,
	)
	return err
}

func (s *Sessions) saveFailHistory(ctx context.Context, empNo, clientIP string, sessionType models.SessionType, reason string) {
	err := saveLoginHistory(ctx, s.m.Pool(), historyEntry{
		empNo:       empNo,
		sessionType: sessionType,
		clientIP:    clientIP,
		status:      models.LoginStatusFail,
		failReason:  reason,
	})
	if err != nil {
		log.Printf("[LOGIN_HISTORY] ❌ save failed: %v", err)
		return
	}
	log.Printf("[LOGIN_HISTORY] FAIL (%s): %s from %s (%s)", sessionType, empNo, clientIP, reason)
}

// CleanupSession ends a session (logout or disconnect). Durable sessions
// get their history row backfilled with logout time and duration;
// temporary ones are just deleted.
func (s *Sessions) CleanupSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}

	var loginTime time.Time
	var isTemporary bool
	err := s.m.QueryRow(ctx,
		`SELECT login_time, is_temporary FROM user_session
		 WHERE session_id = $1 AND is_active`,
		sessionID,
	).Scan(&loginTime, &isTemporary)
	if err == nil && !isTemporary {
		now := time.Now()
		duration := int(now.Sub(loginTime).Seconds())
		if _, err := s.m.Exec(ctx,
			`UPDATE login_history
			 SET logout_time = $1, session_duration = $2
			 WHERE session_id = $3 AND logout_time IS NULL`,
			now, duration, sessionID,
		); err != nil {
			log.Printf("[SESSION] ❌ logout backfill failed: %v", err)
		}
	}

	if _, err := s.m.Exec(ctx,
		`DELETE FROM user_session WHERE session_id = $1`, sessionID,
	); err != nil {
		log.Printf("[SESSION] ❌ cleanup failed: %v", err)
	}
}

// DeleteSessionHistory removes the history row of a session entirely. Used
// for connections shorter than the grace threshold.
func (s *Sessions) DeleteSessionHistory(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if _, err := s.m.Exec(ctx,
		`DELETE FROM login_history WHERE session_id = $1`, sessionID,
	); err != nil {
		log.Printf("[SESSION] ❌ short-session scrub failed: %v", err)
	}
}

// UpdateActivity bumps last_activity so the idle sweep keeps its hands off.
func (s *Sessions) UpdateActivity(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	_, _ = s.m.Exec(ctx,
		`UPDATE user_session SET last_activity = NOW()
		 WHERE session_id = $1 AND is_active`,
		sessionID,
	)
}

// StartSweeper runs the periodic cleanup until ctx is cancelled.
func (s *Sessions) StartSweeper(ctx context.Context) {
	log.Printf("[SESSION_CLEANUP] sweeper started (interval=%v idle_timeout=%v)", s.cleanupInterval, s.idleTimeout)
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[SESSION_CLEANUP] sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes stale temporary sessions outright (no history) and
// closes idle durable sessions, backfilling their history with 타임아웃.
// Exposed so tests can trigger a sweep deterministically.
func (s *Sessions) SweepOnce(ctx context.Context) {
	if _, err := s.m.Exec(ctx,
		`DELETE FROM user_session
		 WHERE is_temporary AND login_time < NOW() - make_interval(secs => $1)`,
		s.duplicateGrace.Seconds(),
	); err != nil {
		log.Printf("[SESSION_CLEANUP] ❌ temporary purge failed: %v", err)
		return
	}

	rows, err := s.m.Query(ctx,
		`SELECT session_id, login_time FROM user_session
		 WHERE is_active AND NOT is_temporary
		   AND last_activity < NOW() - make_interval(secs => $1)`,
		s.idleTimeout.Seconds(),
	)
	if err != nil {
		log.Printf("[SESSION_CLEANUP] ❌ expiry lookup failed: %v", err)
		return
	}
	type expired struct {
		id        string
		loginTime time.Time
	}
	var stale []expired
	for rows.Next() {
		var e expired
		if err := rows.Scan(&e.id, &e.loginTime); err != nil {
			rows.Close()
			return
		}
		stale = append(stale, e)
	}
	rows.Close()

	now := time.Now()
	for _, e := range stale {
		duration := int(now.Sub(e.loginTime).Seconds())
		if _, err := s.m.Exec(ctx,
			`UPDATE login_history
			 SET logout_time = $1, session_duration = $2, fail_reason = $3
			 WHERE session_id = $4 AND logout_time IS NULL`,
			now, duration, FailReasonTimeout, e.id,
		); err != nil {
			log.Printf("[SESSION_CLEANUP] ❌ timeout backfill failed: %v", err)
			continue
		}
		if _, err := s.m.Exec(ctx,
			`UPDATE user_session SET is_active = FALSE WHERE session_id = $1`, e.id,
		); err != nil {
			log.Printf("[SESSION_CLEANUP] ❌ deactivate failed: %v", err)
			continue
		}
		log.Printf("[SESSION_CLEANUP] expired idle session: %.16s...", e.id)
	}
}

// ActiveSessions lists the live durable sessions, newest first.
func (s *Sessions) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.m.Query(ctx,
		`SELECT emp_no, session_id, session_type, client_ip, login_time, last_activity
		 FROM user_session
		 WHERE is_active AND NOT is_temporary
		 ORDER BY login_time DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		sess := models.Session{IsActive: true}
		if err := rows.Scan(&sess.EmpNo, &sess.SessionID, &sess.SessionType, &sess.ClientIP, &sess.LoginTime, &sess.LastActivity); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ActiveSessionCount counts live durable sessions.
func (s *Sessions) ActiveSessionCount(ctx context.Context) int {
	var count int
	if err := s.m.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_session WHERE is_active AND NOT is_temporary`,
	).Scan(&count); err != nil {
		return 0
	}
	return count
}
