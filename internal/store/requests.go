package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"collection-runner/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const requestColumns = `id, project_id, folder_id, name, method, url, headers, params,
	body, expected_schema, last_response, sort_order, created_at`

// AddRequest stores req in projectID, inside folderID when it is not empty.
// The request is appended after the existing requests of the same level.
func (s *Store) AddRequest(ctx context.Context, projectID, folderID string, req models.Request) (*models.Request, error) {
	if err := s.projectExists(ctx, projectID); err != nil {
		return nil, err
	}
	if folderID != "" {
		var owner string
		err := s.db.QueryRowContext(ctx, `SELECT project_id FROM folders WHERE id = $1`, folderID).Scan(&owner)
		if err == sql.ErrNoRows || (err == nil && owner != projectID) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch folder")
		}
	}

	var maxSortOrder sql.NullInt64
	var err error
	if folderID == "" {
		err = s.db.QueryRowContext(ctx, `
			SELECT MAX(sort_order) FROM requests WHERE project_id = $1 AND folder_id IS NULL
		`, projectID).Scan(&maxSortOrder)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT MAX(sort_order) FROM requests WHERE folder_id = $1
		`, folderID).Scan(&maxSortOrder)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to calculate sort order")
	}

	req.ID = uuid.NewString()
	req.ProjectID = projectID
	req.FolderID = folderID
	req.SortOrder = nextSortOrder(maxSortOrder)
	req.CreatedAt = s.nowMillis()
	req.LastResponse = nil
	normalizeRequest(&req)

	if err := insertRequest(ctx, s.db, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	reqs, err := s.listRequests(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, ErrNotFound
	}
	return &reqs[0], nil
}

// UpdateRequest replaces the editable fields of a request. Identity, position
// and the last response are kept.
func (s *Store) UpdateRequest(ctx context.Context, id string, req models.Request) (*models.Request, error) {
	current, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	current.Name = req.Name
	current.Method = req.Method
	current.URL = req.URL
	current.Headers = req.Headers
	current.Params = req.Params
	current.Body = req.Body
	current.ExpectedSchema = req.ExpectedSchema
	normalizeRequest(current)

	headers, params, err := encodeMaps(current)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET name = $1, method = $2, url = $3, headers = $4, params = $5, body = $6, expected_schema = $7
		WHERE id = $8
	`, current.Name, current.Method, current.URL, headers, params, bodyColumn(current), current.ExpectedSchema, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update request")
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete request")
	}
	return expectAffected(res)
}

// DuplicateRequest copies a request next to the original under "<name> (Copy)".
// The copy starts without a last response.
func (s *Store) DuplicateRequest(ctx context.Context, id string) (*models.Request, error) {
	original, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	dup := *original
	dup.Name = original.Name + " (Copy)"
	return s.AddRequest(ctx, original.ProjectID, original.FolderID, dup)
}

// FolderRequests returns the requests of a folder in run order.
func (s *Store) FolderRequests(ctx context.Context, folderID string) ([]models.Request, error) {
	folder, err := s.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return folder.Requests, nil
}

// SaveLastResponse records the most recent outcome of executing a request.
func (s *Store) SaveLastResponse(ctx context.Context, requestID string, resp models.LastResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return errors.Wrap(err, "failed to encode last response")
	}
	res, err := s.db.ExecContext(ctx, `UPDATE requests SET last_response = $1 WHERE id = $2`, string(encoded), requestID)
	if err != nil {
		return errors.Wrap(err, "failed to save last response")
	}
	return expectAffected(res)
}

func (s *Store) listRequests(ctx context.Context, where string, args ...any) ([]models.Request, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests `+where+` ORDER BY sort_order ASC, created_at ASC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch requests")
	}
	defer rows.Close()

	requests := []models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, errors.Wrap(rows.Err(), "failed to iterate requests")
}

func scanRequest(rows *sql.Rows) (models.Request, error) {
	var (
		req          models.Request
		folderID     sql.NullString
		headers      string
		params       string
		body         sql.NullString
		lastResponse sql.NullString
	)
	err := rows.Scan(&req.ID, &req.ProjectID, &folderID, &req.Name, &req.Method, &req.URL,
		&headers, &params, &body, &req.ExpectedSchema, &lastResponse, &req.SortOrder, &req.CreatedAt)
	if err != nil {
		return req, errors.Wrap(err, "failed to scan request")
	}

	req.FolderID = folderID.String
	if err := json.Unmarshal([]byte(headers), &req.Headers); err != nil {
		return req, errors.Wrapf(err, "request %s: invalid headers", req.ID)
	}
	if err := json.Unmarshal([]byte(params), &req.Params); err != nil {
		return req, errors.Wrapf(err, "request %s: invalid params", req.ID)
	}
	if body.Valid {
		req.Body = json.RawMessage(body.String)
	}
	if lastResponse.Valid {
		var lr models.LastResponse
		if err := json.Unmarshal([]byte(lastResponse.String), &lr); err != nil {
			return req, errors.Wrapf(err, "request %s: invalid last response", req.ID)
		}
		req.LastResponse = &lr
	}
	normalizeRequest(&req)
	return req, nil
}

func insertRequest(ctx context.Context, q querier, req *models.Request) error {
	headers, params, err := encodeMaps(req)
	if err != nil {
		return err
	}

	var lastResponse sql.NullString
	if req.LastResponse != nil {
		encoded, err := json.Marshal(req.LastResponse)
		if err != nil {
			return errors.Wrap(err, "failed to encode last response")
		}
		lastResponse = sql.NullString{String: string(encoded), Valid: true}
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, req.ID, req.ProjectID, nullString(req.FolderID), req.Name, req.Method, req.URL,
		headers, params, bodyColumn(req), req.ExpectedSchema, lastResponse, req.SortOrder, req.CreatedAt)
	return errors.Wrap(err, "failed to create request")
}

func normalizeRequest(req *models.Request) {
	req.Method = strings.ToUpper(trimmed(req.Method))
	if req.Method == "" {
		req.Method = "GET"
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if req.Params == nil {
		req.Params = map[string]string{}
	}
	if !req.HasBody() {
		req.Body = nil
	}
}

func encodeMaps(req *models.Request) (string, string, error) {
	headers, err := json.Marshal(req.Headers)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode headers")
	}
	params, err := json.Marshal(req.Params)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode params")
	}
	return string(headers), string(params), nil
}

func bodyColumn(req *models.Request) sql.NullString {
	if !req.HasBody() {
		return sql.NullString{}
	}
	return sql.NullString{String: string(req.Body), Valid: true}
}
