package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sshere/gitlab-ci/internal/errors"
	"github.com/sshere/gitlab-ci/internal/models"
)

func (s *PostgresStore) CreateProject(ctx context.Context, project *models.Project) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (
			name, path, upstream_id, clone_url, default_ref, token,
			coverage_regex, email_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`,
		project.Name,
		project.Path,
		project.UpstreamID,
		project.CloneURL,
		project.DefaultRef,
		project.Token,
		project.CoverageRegex,
		project.EmailEnabled,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	return s.getProject(ctx, "id = $1", id)
}

func (s *PostgresStore) GetProjectByToken(ctx context.Context, token string) (*models.Project, error) {
	return s.getProject(ctx, "token = $1", token)
}

func (s *PostgresStore) getProject(ctx context.Context, where string, arg interface{}) (*models.Project, error) {
	var project models.Project

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, upstream_id, clone_url, default_ref, token,
			coverage_regex, email_enabled, created_at, updated_at
		FROM projects WHERE `+where,
		arg,
	).Scan(
		&project.ID,
		&project.Name,
		&project.Path,
		&project.UpstreamID,
		&project.CloneURL,
		&project.DefaultRef,
		&project.Token,
		&project.CoverageRegex,
		&project.EmailEnabled,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("project not found", err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, upstream_id, clone_url, default_ref, token,
			coverage_regex, email_enabled, created_at, updated_at
		FROM projects
		ORDER BY name
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var project models.Project
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Path,
			&project.UpstreamID,
			&project.CloneURL,
			&project.DefaultRef,
			&project.Token,
			&project.CoverageRegex,
			&project.EmailEnabled,
			&project.CreatedAt,
			&project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, &project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, project *models.Project) error {
	err := s.db.QueryRowContext(ctx, `
		UPDATE projects
		SET name = $1,
			path = $2,
			upstream_id = $3,
			clone_url = $4,
			default_ref = $5,
			coverage_regex = $6,
			email_enabled = $7,
			updated_at = NOW()
		WHERE id = $8
		RETURNING id
	`,
		project.Name,
		project.Path,
		project.UpstreamID,
		project.CloneURL,
		project.DefaultRef,
		project.CoverageRegex,
		project.EmailEnabled,
		project.ID,
	).Scan(&project.ID)

	if err == sql.ErrNoRows {
		return errors.NewNotFoundError(fmt.Sprintf("project not found with id %d", project.ID), err)
	} else if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	return nil
}

// DeleteProject removes a project; commits, builds, webhooks and runner
// assignments go with it via cascades.
func (s *PostgresStore) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("project not found with id %d", id), nil)
	}

	return nil
}

func (s *PostgresStore) CreateRunner(ctx context.Context, runner *models.Runner) error {
	tagJSON, err := json.Marshal(runner.TagList)
	if err != nil {
		return fmt.Errorf("failed to marshal tag list: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO runners (token, description, tag_list, active, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`, runner.Token, runner.Description, tagJSON, runner.Active).Scan(&runner.ID, &runner.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetRunner(ctx context.Context, id int64) (*models.Runner, error) {
	return s.getRunner(ctx, "id = $1", id)
}

func (s *PostgresStore) GetRunnerByToken(ctx context.Context, token string) (*models.Runner, error) {
	return s.getRunner(ctx, "token = $1", token)
}

func (s *PostgresStore) getRunner(ctx context.Context, where string, arg interface{}) (*models.Runner, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, token, description, tag_list, active, contacted_at, created_at
		FROM runners WHERE `+where,
		arg,
	)

	runner, err := scanRunner(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("runner not found", err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get runner: %w", err)
	}

	return runner, nil
}

func (s *PostgresStore) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, token, description, tag_list, active, contacted_at, created_at
		FROM runners
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runners: %w", err)
	}
	defer rows.Close()

	return collectRunners(rows)
}

// TouchRunner records that a runner reported in.
func (s *PostgresStore) TouchRunner(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE runners SET contacted_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to update runner contact time: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRunner(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM runners WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete runner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("runner not found with id %d", id), nil)
	}

	return nil
}

func (s *PostgresStore) AssignRunner(ctx context.Context, runnerID, projectID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runner_projects (runner_id, project_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (runner_id, project_id) DO NOTHING
	`, runnerID, projectID)
	if err != nil {
		return fmt.Errorf("failed to assign runner: %w", err)
	}

	return nil
}

func (s *PostgresStore) UnassignRunner(ctx context.Context, runnerID, projectID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runner_projects WHERE runner_id = $1 AND project_id = $2
	`, runnerID, projectID)
	if err != nil {
		return fmt.Errorf("failed to unassign runner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(
			fmt.Sprintf("runner %d is not assigned to project %d", runnerID, projectID), nil)
	}

	return nil
}

func (s *PostgresStore) ListProjectRunners(ctx context.Context, projectID int64) ([]*models.Runner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.token, r.description, r.tag_list, r.active, r.contacted_at, r.created_at
		FROM runners r
		JOIN runner_projects rp ON rp.runner_id = r.id
		WHERE rp.project_id = $1
		ORDER BY r.id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project runners: %w", err)
	}
	defer rows.Close()

	return collectRunners(rows)
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, hook *models.Webhook) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO webhooks (project_id, url, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`, hook.ProjectID, hook.URL).Scan(&hook.ID, &hook.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}

	return nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, projectID int64) ([]*models.Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, url, created_at
		FROM webhooks
		WHERE project_id = $1
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		var hook models.Webhook
		if err := rows.Scan(&hook.ID, &hook.ProjectID, &hook.URL, &hook.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook row: %w", err)
		}
		hooks = append(hooks, &hook)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook rows: %w", err)
	}

	return hooks, nil
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("webhook not found with id %d", id), nil)
	}

	return nil
}

func scanRunner(row scanner) (*models.Runner, error) {
	var runner models.Runner
	var tagJSON []byte
	var contactedAt sql.NullTime

	err := row.Scan(
		&runner.ID,
		&runner.Token,
		&runner.Description,
		&tagJSON,
		&runner.Active,
		&contactedAt,
		&runner.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if tagJSON != nil {
		if err := json.Unmarshal(tagJSON, &runner.TagList); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tag list: %w", err)
		}
	}
	if contactedAt.Valid {
		runner.ContactedAt = &contactedAt.Time
	}

	return &runner, nil
}

func collectRunners(rows *sql.Rows) ([]*models.Runner, error) {
	var runners []*models.Runner
	for rows.Next() {
		runner, err := scanRunner(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan runner row: %w", err)
		}
		runners = append(runners, runner)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runner rows: %w", err)
	}

	return runners, nil
}
