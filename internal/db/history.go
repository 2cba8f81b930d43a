package db

import (
	"context"
	"math"
	"strconv"

	"api-prodmon/internal/models"
)

// LoginHistoryFilter narrows the audit query. Zero values mean "no filter".
type LoginHistoryFilter struct {
	EmpNo  string
	Status string
	Days   int
	Limit  int
}

// LoginHistory returns audit rows, newest first.
func (s *Sessions) LoginHistory(ctx context.Context, filter LoginHistoryFilter) ([]models.LoginHistoryRecord, error) {
	query := `SELECT emp_no, session_type, client_ip, login_time, logout_time,
	                 session_duration, login_status, fail_reason, user_agent
	          FROM login_history WHERE 1=1`
	args := []any{}

	if filter.EmpNo != "" {
		args = append(args, filter.EmpNo)
		query += ` AND emp_no = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND login_status = $` + strconv.Itoa(len(args))
	}
	if filter.Days > 0 {
		args = append(args, filter.Days)
		query += ` AND login_time >= NOW() - make_interval(days => $` + strconv.Itoa(len(args)) + `)`
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += ` ORDER BY login_time DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.m.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.LoginHistoryRecord
	for rows.Next() {
		var rec models.LoginHistoryRecord
		if err := rows.Scan(&rec.EmpNo, &rec.SessionType, &rec.ClientIP, &rec.LoginTime, &rec.LogoutTime,
			&rec.DurationSeconds, &rec.Status, &rec.FailReason, &rec.UserAgent); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoginStatistics aggregates success rate and average session duration over
// the last N days.
func (s *Sessions) LoginStatistics(ctx context.Context, days int) models.LoginStatistics {
	if days <= 0 {
		days = 7
	}
	stats := models.LoginStatistics{Days: days}

	err := s.m.QueryRow(ctx,
		`SELECT
		    COUNT(*) FILTER (WHERE login_status = 'SUCCESS'),
		    COUNT(*) FILTER (WHERE login_status = 'FAIL'),
		    COALESCE(AVG(session_duration) FILTER (WHERE session_duration > 0), 0)::int
		 FROM login_history
		 WHERE login_time >= NOW() - make_interval(days => $1)`,
		days,
	).Scan(&stats.TotalLogins, &stats.FailedLogins, &stats.AvgSessionDuration)
	if err != nil {
		return stats
	}

	attempts := stats.TotalLogins + stats.FailedLogins
	if attempts > 0 {
		stats.SuccessRate = math.Round(float64(stats.TotalLogins)/float64(attempts)*100*100) / 100
	}
	return stats
}
