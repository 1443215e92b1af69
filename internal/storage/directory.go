package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"offer-workflow-orchestrator/internal/domain"
)

// PostgresDirectory reads application, job and candidate records owned by the
// recruitment backend. It never writes.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) GetApplication(ctx context.Context, applicationRef string) (domain.ApplicationProfile, error) {
	var p domain.ApplicationProfile
	err := d.db.QueryRowContext(ctx, `
		SELECT a.id::text, j.id::text, j.title, j.created_by::text,
		       COALESCE(co.name, ''),
		       c.full_name, c.email,
		       COALESCE(c.phone, ''),
		       COALESCE(to_char(c.date_of_birth, 'YYYY-MM-DD'), ''),
		       COALESCE(a.proposed_salary::text, '')
		FROM job_applications a
		JOIN jobs j ON j.id = a.job_id
		JOIN candidates c ON c.id = a.candidate_id
		LEFT JOIN companies co ON co.id = j.company_id
		WHERE a.id::text = $1
	`, applicationRef).Scan(
		&p.ApplicationRef,
		&p.JobID,
		&p.JobTitle,
		&p.JobOwnerID,
		&p.CompanyName,
		&p.CandidateName,
		&p.CandidateEmail,
		&p.CandidatePhone,
		&p.CandidateDateOfBirth,
		&p.ProposedSalary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ApplicationProfile{}, fmt.Errorf("%w: application %s", domain.ErrNotFound, applicationRef)
	}
	if err != nil {
		return domain.ApplicationProfile{}, fmt.Errorf("load application %s: %w", applicationRef, err)
	}
	return p, nil
}

// StaticDirectory serves application profiles from memory. Used by tests and
// local runs without the recruitment database.
type StaticDirectory struct {
	mu       sync.RWMutex
	profiles map[string]domain.ApplicationProfile
}

func NewStaticDirectory(profiles ...domain.ApplicationProfile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]domain.ApplicationProfile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ApplicationRef] = p
	}
	return d
}

func (d *StaticDirectory) Put(p domain.ApplicationProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.ApplicationRef] = p
}

func (d *StaticDirectory) GetApplication(_ context.Context, applicationRef string) (domain.ApplicationProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[applicationRef]
	if !ok {
		return domain.ApplicationProfile{}, fmt.Errorf("%w: application %s", domain.ErrNotFound, applicationRef)
	}
	return p, nil
}
