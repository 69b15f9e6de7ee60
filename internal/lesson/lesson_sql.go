package lesson

import (
	"context"

	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
)

type LessonSQL struct {
	Conn driver.ITransactionalDB `dep:""`
}

var _ LessonRepository = &LessonSQL{}

func NewLessonRepository(Conn driver.ITransactionalDB) *LessonSQL {
	return &LessonSQL{
		Conn: Conn,
	}
}

func (repo *LessonSQL) ListPublishedLessons(ctx context.Context, offset, limit int) ([]*LessonModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, "index", title
FROM
    lesson
WHERE
    is_published = $1
ORDER BY "index" ASC
LIMIT $2 OFFSET $3
	`, true, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LessonModel
	for rows.Next() {
		item := new(LessonModel)
		if err := rows.Scan(&item.ID, &item.Index, &item.Title); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (repo *LessonSQL) GetLessonProgressByUser(ctx context.Context, userID string) ([]*LessonProgressModel, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    up.id, l.id, l."index", l.title, up.status, up.progress_percentage, up.last_accessed
FROM
    user_progress up
        INNER JOIN
    lesson l ON (l.id = up.lesson_id)
WHERE
    up.user_id = $1
ORDER BY l."index" ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*LessonProgressModel
	for rows.Next() {
		item := new(LessonProgressModel)
		err := rows.Scan(&item.ID, &item.LessonID, &item.Index, &item.Title, &item.Status, &item.Progress, &item.LastAccessed)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}
