package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/sshere/gitlab-ci/internal/errors"
	"github.com/sshere/gitlab-ci/internal/models"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type PostgresStore struct {
	db *sql.DB
}

// Store defines the interface for database operations
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetProjectByToken(ctx context.Context, token string) (*models.Project, error)
	ListProjects(ctx context.Context, limit, offset int) ([]*models.Project, error)
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, id int64) error

	// Commit operations
	CreateCommitWithBuilds(ctx context.Context, commit *models.Commit, builds []*models.Build) error
	GetCommit(ctx context.Context, id int64) (*models.Commit, error)
	ListCommits(ctx context.Context, projectID int64, limit, offset int) ([]*models.Commit, error)
	DeleteCommit(ctx context.Context, id int64) error

	// Build operations
	CreateBuilds(ctx context.Context, builds []*models.Build) error
	GetBuild(ctx context.Context, id int64) (*models.Build, error)
	ListBuilds(ctx context.Context, commitID int64) ([]*models.Build, error)
	UpdateBuild(ctx context.Context, build *models.Build) error

	// Runner operations
	CreateRunner(ctx context.Context, runner *models.Runner) error
	GetRunner(ctx context.Context, id int64) (*models.Runner, error)
	GetRunnerByToken(ctx context.Context, token string) (*models.Runner, error)
	ListRunners(ctx context.Context) ([]*models.Runner, error)
	TouchRunner(ctx context.Context, id int64) error
	DeleteRunner(ctx context.Context, id int64) error
	AssignRunner(ctx context.Context, runnerID, projectID int64) error
	UnassignRunner(ctx context.Context, runnerID, projectID int64) error
	ListProjectRunners(ctx context.Context, projectID int64) ([]*models.Runner, error)

	// Webhook operations
	CreateWebhook(ctx context.Context, hook *models.Webhook) error
	ListWebhooks(ctx context.Context, projectID int64) ([]*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id int64) error
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateCommitWithBuilds persists a commit and its builds in one
// transaction. Build rows get monotonically increasing ids, which the
// retry chain ordering relies on.
func (s *PostgresStore) CreateCommitWithBuilds(ctx context.Context, commit *models.Commit, builds []*models.Build) error {
	pushJSON, err := json.Marshal(commit.Push)
	if err != nil {
		return fmt.Errorf("failed to marshal push data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO commits (project_id, ref, sha, before_sha, push_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, commit.ProjectID, commit.Ref, commit.SHA, commit.BeforeSHA, pushJSON, commit.CreatedAt).Scan(&commit.ID)
	if err != nil {
		return fmt.Errorf("failed to insert commit: %w", err)
	}

	if err := insertBuilds(ctx, tx, commit.ID, builds); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateBuilds inserts build rows for an existing commit, all in one
// transaction.
func (s *PostgresStore) CreateBuilds(ctx context.Context, builds []*models.Build) error {
	if len(builds) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertBuilds(ctx, tx, builds[0].CommitID, builds); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func insertBuilds(ctx context.Context, tx *sql.Tx, commitID int64, builds []*models.Build) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO builds (commit_id, name, commands, tag_list, deploy, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare build insert statement: %w", err)
	}
	defer stmt.Close()

	for _, build := range builds {
		tagJSON, err := json.Marshal(build.TagList)
		if err != nil {
			return fmt.Errorf("failed to marshal tag list: %w", err)
		}

		build.CommitID = commitID
		err = stmt.QueryRowContext(ctx,
			build.CommitID,
			build.Name,
			build.Commands,
			tagJSON,
			build.Deploy,
			build.Status,
			build.CreatedAt,
		).Scan(&build.ID)
		if err != nil {
			return fmt.Errorf("failed to insert build %s: %w", build.Name, err)
		}
	}

	return nil
}

func (s *PostgresStore) GetCommit(ctx context.Context, id int64) (*models.Commit, error) {
	var commit models.Commit
	var pushJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, ref, sha, before_sha, push_data, created_at
		FROM commits WHERE id = $1
	`, id).Scan(
		&commit.ID,
		&commit.ProjectID,
		&commit.Ref,
		&commit.SHA,
		&commit.BeforeSHA,
		&pushJSON,
		&commit.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("commit not found with id %d", id), err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	if err := json.Unmarshal(pushJSON, &commit.Push); err != nil {
		return nil, fmt.Errorf("failed to unmarshal push data: %w", err)
	}

	return &commit, nil
}

func (s *PostgresStore) ListCommits(ctx context.Context, projectID int64, limit, offset int) ([]*models.Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, ref, sha, before_sha, push_data, created_at
		FROM commits
		WHERE project_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, projectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query commits: %w", err)
	}
	defer rows.Close()

	var commits []*models.Commit
	for rows.Next() {
		var commit models.Commit
		var pushJSON []byte
		if err := rows.Scan(
			&commit.ID,
			&commit.ProjectID,
			&commit.Ref,
			&commit.SHA,
			&commit.BeforeSHA,
			&pushJSON,
			&commit.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan commit row: %w", err)
		}

		if err := json.Unmarshal(pushJSON, &commit.Push); err != nil {
			return nil, fmt.Errorf("failed to unmarshal push data: %w", err)
		}

		commits = append(commits, &commit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commit rows: %w", err)
	}

	return commits, nil
}

// DeleteCommit removes a commit; its builds go with it via the cascade
// on builds.commit_id.
func (s *PostgresStore) DeleteCommit(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM commits WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete commit: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("commit not found with id %d", id), nil)
	}

	return nil
}

func (s *PostgresStore) GetBuild(ctx context.Context, id int64) (*models.Build, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, commit_id, name, commands, tag_list, deploy, status,
			created_at, started_at, finished_at, runner_id, coverage, trace
		FROM builds WHERE id = $1
	`, id)

	build, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("build not found with id %d", id), err)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}

	return build, nil
}

func (s *PostgresStore) ListBuilds(ctx context.Context, commitID int64) ([]*models.Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_id, name, commands, tag_list, deploy, status,
			created_at, started_at, finished_at, runner_id, coverage, trace
		FROM builds
		WHERE commit_id = $1
		ORDER BY id
	`, commitID)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.Build
	for rows.Next() {
		build, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build row: %w", err)
		}
		builds = append(builds, build)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating build rows: %w", err)
	}

	return builds, nil
}

func (s *PostgresStore) UpdateBuild(ctx context.Context, build *models.Build) error {
	var startedAt, finishedAt sql.NullTime
	if build.StartedAt != nil {
		startedAt = sql.NullTime{Time: *build.StartedAt, Valid: true}
	}
	if build.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *build.FinishedAt, Valid: true}
	}

	var runnerID sql.NullInt64
	if build.RunnerID != nil {
		runnerID = sql.NullInt64{Int64: *build.RunnerID, Valid: true}
	}

	var coverage sql.NullFloat64
	if build.Coverage != nil {
		coverage = sql.NullFloat64{Float64: *build.Coverage, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE builds
		SET status = $1,
			started_at = $2,
			finished_at = $3,
			runner_id = $4,
			coverage = $5,
			trace = $6
		WHERE id = $7
	`, build.Status, startedAt, finishedAt, runnerID, coverage, build.Trace, build.ID)
	if err != nil {
		return fmt.Errorf("failed to update build: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("build not found with id %d", build.ID), nil)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBuild(row scanner) (*models.Build, error) {
	var build models.Build
	var tagJSON []byte
	var startedAt, finishedAt sql.NullTime
	var runnerID sql.NullInt64
	var coverage sql.NullFloat64

	err := row.Scan(
		&build.ID,
		&build.CommitID,
		&build.Name,
		&build.Commands,
		&tagJSON,
		&build.Deploy,
		&build.Status,
		&build.CreatedAt,
		&startedAt,
		&finishedAt,
		&runnerID,
		&coverage,
		&build.Trace,
	)
	if err != nil {
		return nil, err
	}

	if tagJSON != nil {
		if err := json.Unmarshal(tagJSON, &build.TagList); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tag list: %w", err)
		}
	}
	if startedAt.Valid {
		build.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		build.FinishedAt = &finishedAt.Time
	}
	if runnerID.Valid {
		build.RunnerID = &runnerID.Int64
	}
	if coverage.Valid {
		build.Coverage = &coverage.Float64
	}

	return &build, nil
}
