package translator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-report-api/internal/models"
)

// ErrAuthorNotResolved is returned when the author email has no employee row.
var ErrAuthorNotResolved = errors.New("translator: author not resolved")

// ErrValueOutOfRange is returned when a numeric field does not fit its integer column.
var ErrValueOutOfRange = errors.New("translator: value out of range")

// MaxStoredUnits bounds units_completed and percentage_complete on write.
const MaxStoredUnits = 1_000_000_000

var errRefNotFound = errors.New("translator: reference not found")

// Querier is the subset of *sqlx.DB the translator needs.
type Querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

type refKind int

const (
	refEmployee refKind = iota
	refDepartment
	refActivityType
)

type refTable struct {
	table      string
	nameColumn string
}

var refTables = map[refKind]refTable{
	refEmployee:     {table: "employees", nameColumn: "email"},
	refDepartment:   {table: "departments", nameColumn: "name"},
	refActivityType: {table: "activity_types", nameColumn: "name"},
}

// ActivityRow is the relational shape of an activity.
type ActivityRow struct {
	ID                 string     `db:"id"`
	EmployeeID         string     `db:"employee_id"`
	DepartmentID       *string    `db:"department_id"`
	DepartmentOther    *string    `db:"department_other"`
	ActivityTypeID     *string    `db:"activity_type_id"`
	ActivityTypeOther  *string    `db:"activity_type_other"`
	Description        string     `db:"description"`
	UnitsCompleted     int64      `db:"units_completed"`
	PercentageComplete int64      `db:"percentage_complete"`
	Category           *string    `db:"category"`
	ReportDate         time.Time  `db:"report_date"`
	WeekYear           int        `db:"week_year"`
	WeekNumber         int        `db:"week_number"`
	Status             string     `db:"status"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	SubmittedAt        *time.Time `db:"submitted_at"`
	ReviewedAt         *time.Time `db:"reviewed_at"`
}

// RowRefs are the resolved foreign keys for a row. Nil optional ids fall back
// to the free-text columns.
type RowRefs struct {
	EmployeeID     string
	DepartmentID   *string
	ActivityTypeID *string
}

// RowNames are the display names resolved for a row's foreign keys.
type RowNames struct {
	AuthorEmail  string
	Department   string
	ActivityType string
}

// Translator maps canonical activities to relational rows and back. Its lookup
// cache lives as long as the translator, so callers scope it by construction.
type Translator struct {
	db     Querier
	logger *zap.Logger

	mu    sync.RWMutex
	ids   map[refKind]map[string]string
	names map[refKind]map[string]string
}

// New builds a translator over db with an empty cache.
func New(db Querier, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Translator{
		db:     db,
		logger: logger,
		ids:    make(map[refKind]map[string]string, len(refTables)),
		names:  make(map[refKind]map[string]string, len(refTables)),
	}
	for kind := range refTables {
		t.ids[kind] = make(map[string]string)
		t.names[kind] = make(map[string]string)
	}
	return t
}

// ToRow resolves the activity's names to ids and builds its row.
func (t *Translator) ToRow(ctx context.Context, a models.Activity) (ActivityRow, error) {
	employeeID, err := t.ResolveEmployeeID(ctx, a.AuthorEmail)
	if err != nil {
		return ActivityRow{}, err
	}

	refs := RowRefs{EmployeeID: employeeID}
	if refs.DepartmentID, err = t.optionalRef(ctx, refDepartment, a.Department); err != nil {
		return ActivityRow{}, err
	}
	if refs.ActivityTypeID, err = t.optionalRef(ctx, refActivityType, a.ActivityType); err != nil {
		return ActivityRow{}, err
	}

	return BuildRow(a, refs)
}

// FromRow resolves the row's ids back to names. Dangling references render as
// models.UnknownRefName instead of failing the read.
func (t *Translator) FromRow(ctx context.Context, row ActivityRow) (models.Activity, error) {
	var names RowNames
	var err error

	if names.AuthorEmail, err = t.displayName(ctx, refEmployee, &row.EmployeeID); err != nil {
		return models.Activity{}, err
	}
	if names.Department, err = t.displayName(ctx, refDepartment, row.DepartmentID); err != nil {
		return models.Activity{}, err
	}
	if names.ActivityType, err = t.displayName(ctx, refActivityType, row.ActivityTypeID); err != nil {
		return models.Activity{}, err
	}

	return BuildActivity(row, names), nil
}

// ResolveEmployeeID returns the employee id for email or ErrAuthorNotResolved.
func (t *Translator) ResolveEmployeeID(ctx context.Context, email string) (string, error) {
	id, err := t.resolveID(ctx, refEmployee, email)
	if errors.Is(err, errRefNotFound) {
		return "", fmt.Errorf("%w: %s", ErrAuthorNotResolved, email)
	}
	return id, err
}

// optionalRef keeps an id the activity already carries. Edits that change a
// name drop the id, so only those are resolved by name. A dangling id read back
// as models.UnknownRefName therefore survives the next write untouched.
func (t *Translator) optionalRef(ctx context.Context, kind refKind, ref models.Ref) (*string, error) {
	if ref.ID != "" {
		id := ref.ID
		return &id, nil
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return nil, nil
	}

	id, err := t.resolveID(ctx, kind, name)
	if errors.Is(err, errRefNotFound) {
		t.logger.Debug("reference not found, storing free text",
			zap.String("table", refTables[kind].table), zap.String("name", name))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (t *Translator) displayName(ctx context.Context, kind refKind, id *string) (string, error) {
	if id == nil || *id == "" {
		return "", nil
	}
	name, err := t.resolveName(ctx, kind, *id)
	if errors.Is(err, errRefNotFound) {
		return models.UnknownRefName, nil
	}
	return name, err
}

func (t *Translator) resolveID(ctx context.Context, kind refKind, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errRefNotFound
	}

	t.mu.RLock()
	id, ok := t.ids[kind][name]
	t.mu.RUnlock()
	if ok {
		return id, nil
	}

	tbl := refTables[kind]
	query := t.db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", tbl.table, tbl.nameColumn))
	if err := t.db.GetContext(ctx, &id, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errRefNotFound
		}
		return "", fmt.Errorf("lookup %s id: %w", tbl.table, err)
	}

	t.remember(kind, id, name)
	return id, nil
}

func (t *Translator) resolveName(ctx context.Context, kind refKind, id string) (string, error) {
	t.mu.RLock()
	name, ok := t.names[kind][id]
	t.mu.RUnlock()
	if ok {
		return name, nil
	}

	tbl := refTables[kind]
	query := t.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", tbl.nameColumn, tbl.table))
	if err := t.db.GetContext(ctx, &name, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errRefNotFound
		}
		return "", fmt.Errorf("lookup %s name: %w", tbl.table, err)
	}

	t.remember(kind, id, name)
	return name, nil
}

func (t *Translator) remember(kind refKind, id, name string) {
	t.mu.Lock()
	t.ids[kind][name] = id
	t.names[kind][id] = name
	t.mu.Unlock()
}

// BuildRow is the pure half of ToRow.
func BuildRow(a models.Activity, refs RowRefs) (ActivityRow, error) {
	units, err := storedCount("units_completed", a.UnitsCompleted)
	if err != nil {
		return ActivityRow{}, err
	}
	percentage, err := storedCount("percentage_complete", a.PercentageComplete)
	if err != nil {
		return ActivityRow{}, err
	}

	w := WeekOf(a.ReportDate)
	row := ActivityRow{
		ID:                 a.ID,
		EmployeeID:         refs.EmployeeID,
		DepartmentID:       refs.DepartmentID,
		ActivityTypeID:     refs.ActivityTypeID,
		Description:        a.Description,
		UnitsCompleted:     units,
		PercentageComplete: percentage,
		Category:           a.Category,
		ReportDate:         DateOnly(a.ReportDate),
		WeekYear:           w.Year,
		WeekNumber:         w.Number,
		Status:             string(a.Status),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		SubmittedAt:        a.SubmittedAt,
		ReviewedAt:         a.ReviewedAt,
	}
	if refs.DepartmentID == nil {
		row.DepartmentOther = freeText(a.Department.Name)
	}
	if refs.ActivityTypeID == nil {
		row.ActivityTypeOther = freeText(a.ActivityType.Name)
	}
	return row, nil
}

func storedCount(column string, v float64) (int64, error) {
	if math.IsNaN(v) || v < 0 || v > MaxStoredUnits {
		return 0, fmt.Errorf("%w: %s=%v", ErrValueOutOfRange, column, v)
	}
	return RoundHalfUp(v), nil
}

// BuildActivity is the pure half of FromRow.
func BuildActivity(row ActivityRow, names RowNames) models.Activity {
	a := models.Activity{
		ID:                 row.ID,
		AuthorEmail:        names.AuthorEmail,
		Description:        row.Description,
		UnitsCompleted:     float64(row.UnitsCompleted),
		PercentageComplete: float64(row.PercentageComplete),
		Category:           row.Category,
		ReportDate:         DateOnly(row.ReportDate),
		WeekYear:           row.WeekYear,
		WeekNumber:         row.WeekNumber,
		Status:             models.ActivityStatus(row.Status),
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
		SubmittedAt:        row.SubmittedAt,
		ReviewedAt:         row.ReviewedAt,
	}
	a.Department = rowRef(row.DepartmentID, row.DepartmentOther, names.Department)
	a.ActivityType = rowRef(row.ActivityTypeID, row.ActivityTypeOther, names.ActivityType)
	return a
}

func rowRef(id, other *string, name string) models.Ref {
	if id != nil && *id != "" {
		return models.Ref{ID: *id, Name: name}
	}
	if other != nil {
		return models.Ref{Name: *other}
	}
	return models.Ref{}
}

func freeText(name string) *string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	return &name
}
