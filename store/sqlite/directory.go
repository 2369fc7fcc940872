/*
directory.go - Employee directory backed by the local database

PURPOSE:
  Implements engine.Directory on the employees table. In deployments with
  a central HR system this is replaced by an adapter over that system; the
  engine only ever sees the four read methods.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/vacation-engine/engine"
)

// Employee is one directory row.
type Employee struct {
	ID             engine.EmployeeID
	Name           string
	Email          string
	Department     engine.DepartmentRef
	DepartmentHead bool
	Active         bool
	HireDate       time.Time
	CreatedAt      time.Time
}

func (s *Store) SaveEmployee(ctx context.Context, e Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees
		(id, name, email, department, department_head, active, hire_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, email = excluded.email,
			department = excluded.department, department_head = excluded.department_head,
			active = excluded.active, hire_date = excluded.hire_date`,
		e.ID, e.Name, e.Email, e.Department, e.DepartmentHead, e.Active,
		e.HireDate.Format(dayFormat), e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id engine.EmployeeID) (*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, department, department_head, active, hire_date, created_at
		FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return e, err
}

func (s *Store) ListEmployees(ctx context.Context) ([]*Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, department, department_head, active, hire_date, created_at
		FROM employees ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row scannable) (*Employee, error) {
	var e Employee
	var email, department, hireDate sql.NullString
	var createdAt string
	err := row.Scan(&e.ID, &e.Name, &email, &department, &e.DepartmentHead,
		&e.Active, &hireDate, &createdAt)
	if err != nil {
		return nil, err
	}
	e.Email = email.String
	e.Department = engine.DepartmentRef(department.String)
	if hireDate.Valid && hireDate.String != "" {
		e.HireDate, _ = time.Parse(dayFormat, hireDate.String)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

// =============================================================================
// engine.Directory
// =============================================================================

func (s *Store) EmployeeExists(ctx context.Context, id engine.EmployeeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM employees WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

func (s *Store) EmployeeActive(ctx context.Context, id engine.EmployeeID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT active FROM employees WHERE id = ?`, id).Scan(&active)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return active, err
}

func (s *Store) EmployeeDepartment(ctx context.Context, id engine.EmployeeID) (engine.DepartmentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var dept sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT department FROM employees WHERE id = ?`, id).Scan(&dept)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return engine.DepartmentRef(dept.String), err
}

func (s *Store) IsDepartmentHead(ctx context.Context, id engine.EmployeeID, dept engine.DepartmentRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var head bool
	var rowDept sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT department_head, department FROM employees WHERE id = ?`, id).Scan(&head, &rowDept)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return head && engine.DepartmentRef(rowDept.String) == dept, nil
}
