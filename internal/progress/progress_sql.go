package progress

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
)

// ProgressSQL progress repository over a SQL connection, queries use
// $N placeholders which the mysql driver rewrites
type ProgressSQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ ProgressRepository = &ProgressSQL{}

func NewProgressRepository(Conn driver.ITransactionalDB) *ProgressSQL {
	return &ProgressSQL{
		Conn: Conn,
	}
}

func (repo *ProgressSQL) LessonExists(ctx context.Context, lessonID string) (bool, error) {
	rows, err := repo.Conn.QueryContext(ctx, `SELECT 1 FROM lesson WHERE id = $1`, lessonID)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if rows.Next() {
		return true, nil
	}
	return false, rows.Err()
}

func (repo *ProgressSQL) FindProgress(ctx context.Context, userID, lessonID string) (*ProgressModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, status, progress_percentage, time_spent_minutes, completed_at, last_accessed
FROM
    user_progress
WHERE
    user_id = $1 AND lesson_id = $2
	`, userID, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var (
		item   = &ProgressModel{UserID: userID, LessonID: lessonID}
		status string
	)
	if err := rows.Scan(&item.ID, &status, &item.ProgressPercentage, &item.TimeSpentMinutes, &item.CompletedAt, &item.LastAccessed); err != nil {
		return nil, err
	}
	item.Status = Status(status)
	return item, nil
}

// CreateProgress insert progress, ErrProgressExists when (user, lesson) already has a record
func (repo *ProgressSQL) CreateProgress(ctx context.Context, progress *ProgressModel) error {
	_, err := repo.Conn.ExecContext(ctx, `
INSERT INTO user_progress
    (id, user_id, lesson_id, status, progress_percentage, time_spent_minutes, completed_at, last_accessed)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8)
	`, progress.ID, progress.UserID, progress.LessonID, string(progress.Status),
		progress.ProgressPercentage, progress.TimeSpentMinutes, progress.CompletedAt, progress.LastAccessed)
	if driver.IsUniqueViolation(err) {
		return fmt.Errorf("%w: user %s lesson %s", ErrProgressExists, progress.UserID, progress.LessonID)
	}
	return err
}

func (repo *ProgressSQL) UpdateProgress(ctx context.Context, progress *ProgressModel) error {
	_, err := repo.Conn.ExecContext(ctx, `
UPDATE user_progress
SET
    status = $1, progress_percentage = $2, time_spent_minutes = $3, completed_at = $4, last_accessed = $5
WHERE
    id = $6
	`, string(progress.Status), progress.ProgressPercentage, progress.TimeSpentMinutes,
		progress.CompletedAt, progress.LastAccessed, progress.ID)
	return err
}

func (repo *ProgressSQL) CreateInteraction(ctx context.Context, interaction *InteractionModel) error {
	_, err := repo.Conn.ExecContext(ctx, `
INSERT INTO lesson_interaction
    (id, user_id, lesson_id, interaction_type, session_id, metadata, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6, $7)
	`, interaction.ID, interaction.UserID, interaction.LessonID, string(interaction.Kind),
		interaction.SessionID, string(interaction.Metadata), interaction.CreatedAt)
	return err
}

// Transaction run fn against a repository bound to a single transaction
func (repo *ProgressSQL) Transaction(ctx context.Context, fn func(ctx context.Context, tx ProgressRepository) error) error {
	return driver.RunInTx(ctx, repo.Conn, func(tx driver.ITransactionalDB) error {
		return fn(ctx, &ProgressSQL{Conn: tx})
	})
}

// CountProgressByStatus number of progress records of lessonID per status
func (repo *ProgressSQL) CountProgressByStatus(ctx context.Context, lessonID string) (map[Status]int64, error) {
	return repo.countByStatus(ctx, `
SELECT status, COUNT(*) FROM user_progress WHERE lesson_id = $1 GROUP BY status
	`, lessonID)
}

// CountAllProgressByStatus number of progress records per status, system wide
func (repo *ProgressSQL) CountAllProgressByStatus(ctx context.Context) (map[Status]int64, error) {
	return repo.countByStatus(ctx, `SELECT status, COUNT(*) FROM user_progress GROUP BY status`)
}

func (repo *ProgressSQL) CountPublishedLessons(ctx context.Context) (int64, error) {
	return repo.count(ctx, `SELECT COUNT(*) FROM lesson WHERE is_published = $1`, true)
}

func (repo *ProgressSQL) CountCompletedForUser(ctx context.Context, userID string) (int64, error) {
	return repo.count(ctx, `
SELECT COUNT(*) FROM user_progress WHERE user_id = $1 AND status = $2
	`, userID, string(StatusCompleted))
}

// GroupedProgressCounts progress counts grouped by (lesson, status) for every lesson in lessonIDs, in one query
func (repo *ProgressSQL) GroupedProgressCounts(ctx context.Context, lessonIDs []string) ([]*StatusCount, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(lessonIDs))
	args := make([]interface{}, len(lessonIDs))
	for i, id := range lessonIDs {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}

	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    lesson_id, status, COUNT(*)
FROM
    user_progress
WHERE
    lesson_id IN (`+strings.Join(placeholders, ", ")+`)
GROUP BY lesson_id, status
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*StatusCount
	for rows.Next() {
		var (
			item   = new(StatusCount)
			status string
		)
		if err := rows.Scan(&item.LessonID, &status, &item.Count); err != nil {
			return nil, err
		}
		item.Status = Status(status)
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (repo *ProgressSQL) countByStatus(ctx context.Context, query string, args ...interface{}) (map[Status]int64, error) {
	rows, err := repo.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[Status]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		result[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (repo *ProgressSQL) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	rows, err := repo.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, rows.Err()
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
