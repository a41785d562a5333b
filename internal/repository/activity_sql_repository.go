package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-report-api/internal/models"
	"github.com/noah-isme/activity-report-api/internal/translator"
)

const activityColumns = `id, employee_id, department_id, department_other, activity_type_id, activity_type_other,
	description, units_completed, percentage_complete, category, report_date, week_year, week_number,
	status, created_at, updated_at, submitted_at, reviewed_at`

// ActivitySQLRepository stores activities in foreign-key linked tables. Deletes
// set deleted_at; soft-deleted rows are invisible to every read.
type ActivitySQLRepository struct {
	db         *sqlx.DB
	translator *translator.Translator
}

var _ ActivityRepository = (*ActivitySQLRepository)(nil)

// NewActivitySQLRepository constructs the repository.
func NewActivitySQLRepository(db *sqlx.DB, tr *translator.Translator) *ActivitySQLRepository {
	return &ActivitySQLRepository{db: db, translator: tr}
}

// Create inserts a new activity row.
func (r *ActivitySQLRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	row, err := r.translator.ToRow(ctx, *activity)
	if err != nil {
		return err
	}
	const query = `INSERT INTO activities (` + activityColumns + `)
	VALUES (:id, :employee_id, :department_id, :department_other, :activity_type_id, :activity_type_other,
	:description, :units_completed, :percentage_complete, :category, :report_date, :week_year, :week_number,
	:status, :created_at, :updated_at, :submitted_at, :reviewed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	applyRow(activity, row)
	return nil
}

// Get fetches a live activity by id.
func (r *ActivitySQLRepository) Get(ctx context.Context, id string) (*models.Activity, error) {
	query := r.db.Rebind(`SELECT ` + activityColumns + ` FROM activities WHERE id = ? AND deleted_at IS NULL`)
	var row translator.ActivityRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	activity, err := r.translator.FromRow(ctx, row)
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// Update overwrites a live activity. Last write wins.
func (r *ActivitySQLRepository) Update(ctx context.Context, activity *models.Activity) error {
	row, err := r.translator.ToRow(ctx, *activity)
	if err != nil {
		return err
	}
	const query = `UPDATE activities SET employee_id = :employee_id, department_id = :department_id,
	department_other = :department_other, activity_type_id = :activity_type_id, activity_type_other = :activity_type_other,
	description = :description, units_completed = :units_completed, percentage_complete = :percentage_complete,
	category = :category, report_date = :report_date, week_year = :week_year, week_number = :week_number,
	status = :status, updated_at = :updated_at, submitted_at = :submitted_at, reviewed_at = :reviewed_at
	WHERE id = :id AND deleted_at IS NULL`
	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	applyRow(activity, row)
	return nil
}

// Delete soft-deletes the activity.
func (r *ActivitySQLRepository) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	query := r.db.Rebind(`UPDATE activities SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`)
	res, err := r.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return expectAffected(res)
}

// List returns live activities matching the filter, newest report first.
func (r *ActivitySQLRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.Activity, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + activityColumns + ` FROM activities WHERE deleted_at IS NULL`)
	args := []interface{}{}

	if filter.AuthorEmail != "" {
		employeeID, err := r.translator.ResolveEmployeeID(ctx, filter.AuthorEmail)
		if errors.Is(err, translator.ErrAuthorNotResolved) {
			return []models.Activity{}, nil
		}
		if err != nil {
			return nil, err
		}
		builder.WriteString(" AND employee_id = ?")
		args = append(args, employeeID)
	}
	if len(filter.Status) > 0 {
		builder.WriteString(" AND status IN (?)")
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
	}
	if filter.From != nil {
		builder.WriteString(" AND report_date >= ?")
		args = append(args, translator.DateOnly(*filter.From))
	}
	if filter.To != nil {
		builder.WriteString(" AND report_date <= ?")
		args = append(args, translator.DateOnly(*filter.To))
	}
	builder.WriteString(" ORDER BY report_date DESC, created_at DESC, id")

	query, args, err := sqlx.In(builder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	var rows []translator.ActivityRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}

	result := make([]models.Activity, 0, len(rows))
	for _, row := range rows {
		activity, err := r.translator.FromRow(ctx, row)
		if err != nil {
			return nil, err
		}
		result = append(result, activity)
	}
	return result, nil
}

// AddFeedback inserts one feedback entry.
func (r *ActivitySQLRepository) AddFeedback(ctx context.Context, feedback *models.Feedback) error {
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO activity_feedback (id, activity_id, author_email, body, is_admin_comment, created_at)
	VALUES (:id, :activity_id, :author_email, :body, :is_admin_comment, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, feedback); err != nil {
		return fmt.Errorf("create feedback: %w", err)
	}
	return nil
}

// ListFeedback returns an activity's feedback, oldest first.
func (r *ActivitySQLRepository) ListFeedback(ctx context.Context, activityID string) ([]models.Feedback, error) {
	query := r.db.Rebind(`SELECT id, activity_id, author_email, body, is_admin_comment, created_at
	FROM activity_feedback WHERE activity_id = ? ORDER BY created_at, id`)
	var list []models.Feedback
	if err := r.db.SelectContext(ctx, &list, query, activityID); err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	if list == nil {
		list = []models.Feedback{}
	}
	return list, nil
}

// applyRow copies the stored, rounded values back to the caller's activity.
func applyRow(activity *models.Activity, row translator.ActivityRow) {
	activity.UnitsCompleted = float64(row.UnitsCompleted)
	activity.PercentageComplete = float64(row.PercentageComplete)
	activity.ReportDate = row.ReportDate
	activity.WeekYear = row.WeekYear
	activity.WeekNumber = row.WeekNumber
	if row.DepartmentID != nil {
		activity.Department.ID = *row.DepartmentID
	}
	if row.ActivityTypeID != nil {
		activity.ActivityType.ID = *row.ActivityTypeID
	}
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
