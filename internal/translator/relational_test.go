package translator

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-report-api/internal/models"
)

func newTranslatorMock(t *testing.T) (*Translator, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return New(sqlx.NewDb(db, "sqlmock"), nil), mock, func() { db.Close() }
}

var (
	employeeIDQuery     = regexp.QuoteMeta("SELECT id FROM employees WHERE email = ?")
	departmentIDQuery   = regexp.QuoteMeta("SELECT id FROM departments WHERE name = ?")
	typeIDQuery         = regexp.QuoteMeta("SELECT id FROM activity_types WHERE name = ?")
	employeeNameQuery   = regexp.QuoteMeta("SELECT email FROM employees WHERE id = ?")
	departmentNameQuery = regexp.QuoteMeta("SELECT name FROM departments WHERE id = ?")
	typeNameQuery       = regexp.QuoteMeta("SELECT name FROM activity_types WHERE id = ?")
)

func idRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id"}).AddRow(id)
}

func nameRow(name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"name"}).AddRow(name)
}

func sampleActivity() models.Activity {
	return models.Activity{
		ID:                 "act-1",
		AuthorEmail:        "dana@example.com",
		Department:         models.Ref{Name: "Operations"},
		ActivityType:       models.Ref{Name: "Inspection"},
		Description:        "checked pumps",
		UnitsCompleted:     5.6,
		PercentageComplete: 82.4,
		ReportDate:         time.Date(2025, time.October, 8, 0, 0, 0, 0, time.UTC),
		Status:             models.ActivityStatusDraft,
	}
}

func TestToRowResolvesAndRounds(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	mock.ExpectQuery(employeeIDQuery).WithArgs("dana@example.com").WillReturnRows(idRow("emp-1"))
	mock.ExpectQuery(departmentIDQuery).WithArgs("Operations").WillReturnRows(idRow("dep-1"))
	mock.ExpectQuery(typeIDQuery).WithArgs("Inspection").WillReturnRows(idRow("typ-1"))

	row, err := tr.ToRow(context.Background(), sampleActivity())
	require.NoError(t, err)
	assert.Equal(t, "emp-1", row.EmployeeID)
	require.NotNil(t, row.DepartmentID)
	assert.Equal(t, "dep-1", *row.DepartmentID)
	assert.Nil(t, row.DepartmentOther)
	require.NotNil(t, row.ActivityTypeID)
	assert.Equal(t, "typ-1", *row.ActivityTypeID)
	assert.Equal(t, int64(6), row.UnitsCompleted)
	assert.Equal(t, int64(82), row.PercentageComplete)
	assert.Equal(t, 2025, row.WeekYear)
	assert.Equal(t, WeekOf(row.ReportDate).Number, row.WeekNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowCachesLookups(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	// Each distinct name costs one query, repeated writes hit the cache.
	mock.ExpectQuery(employeeIDQuery).WithArgs("dana@example.com").WillReturnRows(idRow("emp-1"))
	mock.ExpectQuery(departmentIDQuery).WithArgs("Operations").WillReturnRows(idRow("dep-1"))
	mock.ExpectQuery(typeIDQuery).WithArgs("Inspection").WillReturnRows(idRow("typ-1"))

	for i := 0; i < 3; i++ {
		_, err := tr.ToRow(context.Background(), sampleActivity())
		require.NoError(t, err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedIDAlsoServesReverseLookup(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	mock.ExpectQuery(employeeIDQuery).WillReturnRows(idRow("emp-1"))
	mock.ExpectQuery(departmentIDQuery).WillReturnRows(idRow("dep-1"))
	mock.ExpectQuery(typeIDQuery).WillReturnRows(idRow("typ-1"))

	row, err := tr.ToRow(context.Background(), sampleActivity())
	require.NoError(t, err)

	got, err := tr.FromRow(context.Background(), row)
	require.NoError(t, err)
	assert.Equal(t, "dana@example.com", got.AuthorEmail)
	assert.Equal(t, models.Ref{ID: "dep-1", Name: "Operations"}, got.Department)
	assert.Equal(t, models.Ref{ID: "typ-1", Name: "Inspection"}, got.ActivityType)
	assert.Equal(t, 6.0, got.UnitsCompleted)
	assert.Equal(t, 82.0, got.PercentageComplete)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowAuthorMissingIsFatal(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	mock.ExpectQuery(employeeIDQuery).WithArgs("dana@example.com").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := tr.ToRow(context.Background(), sampleActivity())
	require.ErrorIs(t, err, ErrAuthorNotResolved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowFallsBackToFreeText(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	mock.ExpectQuery(employeeIDQuery).WillReturnRows(idRow("emp-1"))
	mock.ExpectQuery(departmentIDQuery).WillReturnRows(idRow("dep-1"))
	mock.ExpectQuery(typeIDQuery).WithArgs("Inspection").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	row, err := tr.ToRow(context.Background(), sampleActivity())
	require.NoError(t, err)
	assert.Nil(t, row.ActivityTypeID)
	require.NotNil(t, row.ActivityTypeOther)
	assert.Equal(t, "Inspection", *row.ActivityTypeOther)

	// Misses are not cached, a later write queries again.
	mock.ExpectQuery(typeIDQuery).WithArgs("Inspection").WillReturnRows(idRow("typ-9"))
	row, err = tr.ToRow(context.Background(), sampleActivity())
	require.NoError(t, err)
	require.NotNil(t, row.ActivityTypeID)
	assert.Equal(t, "typ-9", *row.ActivityTypeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowBackendErrorPropagates(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	boom := errors.New("connection reset")
	mock.ExpectQuery(employeeIDQuery).WillReturnError(boom)

	_, err := tr.ToRow(context.Background(), sampleActivity())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrAuthorNotResolved)
}

func TestFromRowRendersUnknownForDanglingReferences(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	dep := "dep-gone"
	typ := "typ-1"
	mock.ExpectQuery(employeeNameQuery).WithArgs("emp-1").WillReturnRows(nameRow("dana@example.com"))
	mock.ExpectQuery(departmentNameQuery).WithArgs(dep).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery(typeNameQuery).WithArgs(typ).WillReturnRows(nameRow("Inspection"))

	got, err := tr.FromRow(context.Background(), ActivityRow{
		ID:             "act-1",
		EmployeeID:     "emp-1",
		DepartmentID:   &dep,
		ActivityTypeID: &typ,
		Status:         "draft",
		ReportDate:     time.Date(2025, time.October, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, models.UnknownRefName, got.Department.Name)
	assert.Equal(t, dep, got.Department.ID)
	assert.Equal(t, "Inspection", got.ActivityType.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRowAndActivityRoundTrip(t *testing.T) {
	a := sampleActivity()
	a.UnitsCompleted = 6
	a.PercentageComplete = 82
	category := "field"
	a.Category = &category
	ApplyWeek(&a)

	dep, typ := "dep-1", "typ-1"
	row, err := BuildRow(a, RowRefs{EmployeeID: "emp-1", DepartmentID: &dep, ActivityTypeID: &typ})
	require.NoError(t, err)
	back := BuildActivity(row, RowNames{AuthorEmail: a.AuthorEmail, Department: "Operations", ActivityType: "Inspection"})

	a.Department.ID = dep
	a.ActivityType.ID = typ
	assert.Equal(t, a, back)
}

func TestBuildActivityUsesFreeTextWithoutID(t *testing.T) {
	other := "Night shift"
	got := BuildActivity(ActivityRow{DepartmentOther: &other}, RowNames{})
	assert.Equal(t, models.Ref{Name: "Night shift"}, got.Department)
	assert.Equal(t, models.Ref{}, got.ActivityType)
}

func TestRewriteKeepsDanglingReference(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	dep := "dep-gone"
	typ := "typ-1"
	mock.ExpectQuery(employeeNameQuery).WithArgs("emp-1").WillReturnRows(nameRow("dana@example.com"))
	mock.ExpectQuery(departmentNameQuery).WithArgs(dep).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectQuery(typeNameQuery).WithArgs(typ).WillReturnRows(nameRow("Inspection"))

	read, err := tr.FromRow(context.Background(), ActivityRow{
		ID:             "act-1",
		EmployeeID:     "emp-1",
		DepartmentID:   &dep,
		ActivityTypeID: &typ,
		Status:         "submitted",
		ReportDate:     time.Date(2025, time.October, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, models.Ref{ID: dep, Name: models.UnknownRefName}, read.Department)

	// Every id is either carried or cached, so the write needs no lookups.
	row, err := tr.ToRow(context.Background(), read)
	require.NoError(t, err)
	require.NotNil(t, row.DepartmentID)
	assert.Equal(t, dep, *row.DepartmentID)
	assert.Nil(t, row.DepartmentOther)
	require.NotNil(t, row.ActivityTypeID)
	assert.Equal(t, typ, *row.ActivityTypeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowResolvesRenamedReference(t *testing.T) {
	tr, mock, cleanup := newTranslatorMock(t)
	defer cleanup()

	mock.ExpectQuery(employeeIDQuery).WillReturnRows(idRow("emp-1"))
	mock.ExpectQuery(departmentIDQuery).WithArgs("Logistics").WillReturnRows(idRow("dep-2"))

	a := sampleActivity()
	a.Department = models.Ref{Name: "Logistics"}
	a.ActivityType = models.Ref{ID: "typ-1", Name: "Inspection"}

	row, err := tr.ToRow(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, row.DepartmentID)
	assert.Equal(t, "dep-2", *row.DepartmentID)
	require.NotNil(t, row.ActivityTypeID)
	assert.Equal(t, "typ-1", *row.ActivityTypeID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildRowRejectsOutOfRangeCounts(t *testing.T) {
	cases := map[string]func(*models.Activity){
		"huge units":   func(a *models.Activity) { a.UnitsCompleted = 1e20 },
		"negative":     func(a *models.Activity) { a.UnitsCompleted = -1 },
		"nan":          func(a *models.Activity) { a.PercentageComplete = math.NaN() },
		"huge percent": func(a *models.Activity) { a.PercentageComplete = MaxStoredUnits + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			a := sampleActivity()
			mutate(&a)
			_, err := BuildRow(a, RowRefs{EmployeeID: "emp-1"})
			require.ErrorIs(t, err, ErrValueOutOfRange)
		})
	}

	a := sampleActivity()
	a.UnitsCompleted = MaxStoredUnits
	row, err := BuildRow(a, RowRefs{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(MaxStoredUnits), row.UnitsCompleted)
}
