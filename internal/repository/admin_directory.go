package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// AdminSQLDirectory reads administrators from the employees table.
type AdminSQLDirectory struct {
	db *sqlx.DB
}

// NewAdminSQLDirectory constructs the directory.
func NewAdminSQLDirectory(db *sqlx.DB) *AdminSQLDirectory {
	return &AdminSQLDirectory{db: db}
}

// AdminEmails returns every administrator email.
func (d *AdminSQLDirectory) AdminEmails(ctx context.Context) ([]string, error) {
	query := d.db.Rebind(`SELECT email FROM employees WHERE is_admin = ? ORDER BY email`)
	var emails []string
	if err := d.db.SelectContext(ctx, &emails, query, true); err != nil {
		return nil, fmt.Errorf("list administrators: %w", err)
	}
	return emails, nil
}

// StaticAdminDirectory serves a fixed administrator list for backends
// without an employee table.
type StaticAdminDirectory struct {
	emails []string
}

// NewStaticAdminDirectory normalises emails into a sorted set.
func NewStaticAdminDirectory(emails []string) *StaticAdminDirectory {
	seen := make(map[string]struct{}, len(emails))
	list := make([]string, 0, len(emails))
	for _, email := range emails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		list = append(list, email)
	}
	sort.Strings(list)
	return &StaticAdminDirectory{emails: list}
}

// AdminEmails returns a copy of the configured list.
func (d *StaticAdminDirectory) AdminEmails(context.Context) ([]string, error) {
	return append([]string(nil), d.emails...), nil
}

