// Package store persists projects, folders, requests, environments and the
// last response of every request.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"collection-runner/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a project, folder or request does not exist.
var ErrNotFound = errors.New("not found")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// ---- projects ----

// CreateProject creates a project with empty dev and production environments.
func (s *Store) CreateProject(ctx context.Context, name string) (*models.Project, error) {
	project := &models.Project{
		ID:        uuid.NewString(),
		Name:      name,
		Requests:  []models.Request{},
		Folders:   []models.Folder{},
		CreatedAt: s.nowMillis(),
		Environments: models.Environments{
			Dev:        map[string]string{},
			Production: map[string]string{},
		},
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return insertProject(ctx, tx, project)
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func insertProject(ctx context.Context, q querier, p *models.Project) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, name, created_at)
		VALUES ($1, $2, $3)
	`, p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create project")
	}

	for _, name := range []models.EnvironmentName{models.EnvDev, models.EnvProduction} {
		if err := putEnvironment(ctx, q, p.ID, name, p.Environments.Get(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ListProjects(ctx context.Context) ([]models.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM projects
		ORDER BY created_at ASC, name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch projects")
	}
	defer rows.Close()

	projects := []models.ProjectSummary{}
	for rows.Next() {
		var p models.ProjectSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan project")
		}
		projects = append(projects, p)
	}
	return projects, errors.Wrap(rows.Err(), "failed to iterate projects")
}

// GetProject loads a project with its folders, requests and environments.
func (s *Store) GetProject(ctx context.Context, id string) (*models.Project, error) {
	project := &models.Project{Requests: []models.Request{}, Folders: []models.Folder{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM projects WHERE id = $1
	`, id).Scan(&project.ID, &project.Name, &project.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch project")
	}

	if project.Environments.Dev, err = getEnvironment(ctx, s.db, id, models.EnvDev); err != nil {
		return nil, err
	}
	if project.Environments.Production, err = getEnvironment(ctx, s.db, id, models.EnvProduction); err != nil {
		return nil, err
	}

	folders, err := s.listFolders(ctx, id)
	if err != nil {
		return nil, err
	}

	requests, err := s.listRequests(ctx, `WHERE project_id = $1`, id)
	if err != nil {
		return nil, err
	}

	byFolder := make(map[string]int, len(folders))
	for i := range folders {
		byFolder[folders[i].ID] = i
	}
	for _, req := range requests {
		if idx, ok := byFolder[req.FolderID]; ok {
			folders[idx].Requests = append(folders[idx].Requests, req)
		} else {
			project.Requests = append(project.Requests, req)
		}
	}
	project.Folders = folders
	return project, nil
}

func (s *Store) RenameProject(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return errors.Wrap(err, "failed to rename project")
	}
	return expectAffected(res)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM requests WHERE project_id = $1`,
			`DELETE FROM folders WHERE project_id = $1`,
			`DELETE FROM environments WHERE project_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return errors.Wrap(err, "failed to delete project contents")
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "failed to delete project")
		}
		return expectAffected(res)
	})
}

// ---- folders ----

func (s *Store) CreateFolder(ctx context.Context, projectID, name string) (*models.Folder, error) {
	if err := s.projectExists(ctx, projectID); err != nil {
		return nil, err
	}

	var maxSortOrder sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sort_order) FROM folders WHERE project_id = $1
	`, projectID).Scan(&maxSortOrder)
	if err != nil {
		return nil, errors.Wrap(err, "failed to calculate sort order")
	}

	folder := &models.Folder{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Requests:  []models.Request{},
		SortOrder: nextSortOrder(maxSortOrder),
	}
	if err := insertFolder(ctx, s.db, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func insertFolder(ctx context.Context, q querier, f *models.Folder) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO folders (id, project_id, name, sort_order)
		VALUES ($1, $2, $3, $4)
	`, f.ID, f.ProjectID, f.Name, f.SortOrder)
	return errors.Wrap(err, "failed to create folder")
}

// GetFolder loads a folder and its requests in run order.
func (s *Store) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	folder := &models.Folder{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, sort_order FROM folders WHERE id = $1
	`, id).Scan(&folder.ID, &folder.ProjectID, &folder.Name, &folder.SortOrder)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch folder")
	}

	folder.Requests, err = s.listRequests(ctx, `WHERE folder_id = $1`, id)
	if err != nil {
		return nil, err
	}
	return folder, nil
}

func (s *Store) RenameFolder(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE folders SET name = $1 WHERE id = $2`, name, id)
	if err != nil {
		return errors.Wrap(err, "failed to rename folder")
	}
	return expectAffected(res)
}

// DeleteFolder removes a folder together with its requests.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE folder_id = $1`, id); err != nil {
			return errors.Wrap(err, "failed to delete folder requests")
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, "failed to delete folder")
		}
		return expectAffected(res)
	})
}

func (s *Store) listFolders(ctx context.Context, projectID string) ([]models.Folder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, sort_order
		FROM folders
		WHERE project_id = $1
		ORDER BY sort_order ASC
	`, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch folders")
	}
	defer rows.Close()

	folders := []models.Folder{}
	for rows.Next() {
		f := models.Folder{Requests: []models.Request{}}
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.SortOrder); err != nil {
			return nil, errors.Wrap(err, "failed to scan folder")
		}
		folders = append(folders, f)
	}
	return folders, errors.Wrap(rows.Err(), "failed to iterate folders")
}

// ---- environments ----

// GetEnvironment returns the variables of one environment, never nil.
func (s *Store) GetEnvironment(ctx context.Context, projectID string, name models.EnvironmentName) (map[string]string, error) {
	if err := s.projectExists(ctx, projectID); err != nil {
		return nil, err
	}
	return getEnvironment(ctx, s.db, projectID, name)
}

// PutEnvironment replaces all variables of one environment.
func (s *Store) PutEnvironment(ctx context.Context, projectID string, name models.EnvironmentName, vars map[string]string) error {
	if err := s.projectExists(ctx, projectID); err != nil {
		return err
	}
	return putEnvironment(ctx, s.db, projectID, name, vars)
}

// MergeEnvironment adds or overwrites the given variables and returns the result.
func (s *Store) MergeEnvironment(ctx context.Context, projectID string, name models.EnvironmentName, vars map[string]string) (map[string]string, error) {
	var merged map[string]string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
			return errors.Wrap(err, "failed to check project existence")
		}
		if !exists {
			return ErrNotFound
		}

		current, err := getEnvironment(ctx, tx, projectID, name)
		if err != nil {
			return err
		}
		for k, v := range vars {
			current[k] = v
		}
		merged = current
		return putEnvironment(ctx, tx, projectID, name, current)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

func getEnvironment(ctx context.Context, q querier, projectID string, name models.EnvironmentName) (map[string]string, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT variables FROM environments WHERE project_id = $1 AND name = $2
	`, projectID, string(name)).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch environment")
	}

	vars := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &vars); err != nil || vars == nil {
		vars = map[string]string{}
	}
	return vars, nil
}

func putEnvironment(ctx context.Context, q querier, projectID string, name models.EnvironmentName, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return errors.Wrap(err, "failed to encode variables")
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO environments (project_id, name, variables)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, name) DO UPDATE SET variables = excluded.variables
	`, projectID, string(name), string(encoded))
	return errors.Wrap(err, "failed to save environment")
}

// ---- import / export ----

// ExportProjects returns every project in full.
func (s *Store) ExportProjects(ctx context.Context) ([]models.Project, error) {
	summaries, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	projects := make([]models.Project, 0, len(summaries))
	for _, summary := range summaries {
		project, err := s.GetProject(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, nil
}

// ImportProjects stores projects under freshly generated ids so that imports
// never collide with existing data. The stored projects are returned.
func (s *Store) ImportProjects(ctx context.Context, projects []models.Project) ([]models.Project, error) {
	imported := make([]models.Project, 0, len(projects))

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, src := range projects {
			project := models.Project{
				ID:           uuid.NewString(),
				Name:         src.Name,
				CreatedAt:    src.CreatedAt,
				Environments: src.Environments,
				Requests:     []models.Request{},
				Folders:      []models.Folder{},
			}
			if project.CreatedAt == 0 {
				project.CreatedAt = s.nowMillis()
			}
			if err := insertProject(ctx, tx, &project); err != nil {
				return err
			}

			for i, req := range src.Requests {
				stored, err := s.importRequest(ctx, tx, project.ID, "", i, req)
				if err != nil {
					return err
				}
				project.Requests = append(project.Requests, stored)
			}

			for i, srcFolder := range src.Folders {
				folder := models.Folder{
					ID:        uuid.NewString(),
					ProjectID: project.ID,
					Name:      srcFolder.Name,
					SortOrder: i,
					Requests:  []models.Request{},
				}
				if err := insertFolder(ctx, tx, &folder); err != nil {
					return err
				}
				for j, req := range srcFolder.Requests {
					stored, err := s.importRequest(ctx, tx, project.ID, folder.ID, j, req)
					if err != nil {
						return err
					}
					folder.Requests = append(folder.Requests, stored)
				}
				project.Folders = append(project.Folders, folder)
			}

			imported = append(imported, project)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return imported, nil
}

func (s *Store) importRequest(ctx context.Context, tx *sql.Tx, projectID, folderID string, order int, req models.Request) (models.Request, error) {
	req.ID = uuid.NewString()
	req.ProjectID = projectID
	req.FolderID = folderID
	req.SortOrder = order
	if req.CreatedAt == 0 {
		req.CreatedAt = s.nowMillis()
	}
	normalizeRequest(&req)
	if err := insertRequest(ctx, tx, &req); err != nil {
		return models.Request{}, err
	}
	return req, nil
}

// ---- helpers ----

func (s *Store) projectExists(ctx context.Context, id string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "failed to check project existence")
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nextSortOrder(max sql.NullInt64) int {
	if max.Valid {
		return int(max.Int64) + 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
