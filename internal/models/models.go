package models

import (
	"encoding/json"
)

// EnvironmentName selects one of the two environments every project owns.
type EnvironmentName string

const (
	EnvDev        EnvironmentName = "dev"
	EnvProduction EnvironmentName = "production"
)

func (n EnvironmentName) Valid() bool {
	return n == EnvDev || n == EnvProduction
}

// AllowedMethods lists the HTTP methods a request may use.
var AllowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

type Project struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Requests     []Request    `json:"requests"`
	Folders      []Folder     `json:"folders"`
	Environments Environments `json:"environments"`
	CreatedAt    int64        `json:"createdAt"`
}

// ProjectSummary is the list view of a project.
type ProjectSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
}

// Folder is an ordered, named group of requests.
type Folder struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	Name      string    `json:"name"`
	Requests  []Request `json:"requests"`
	SortOrder int       `json:"sortOrder"`
}

type Request struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"projectId,omitempty"`
	FolderID  string            `json:"folderId,omitempty"`
	Name      string            `json:"name"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	Params    map[string]string `json:"params"`
	// Body is any JSON value; nil means the request has no body.
	Body           json.RawMessage `json:"body,omitempty"`
	ExpectedSchema string          `json:"expectedTypes,omitempty"` // JSON Schema as text
	LastResponse   *LastResponse   `json:"lastResponse,omitempty"`
	SortOrder      int             `json:"sortOrder"`
	CreatedAt      int64           `json:"createdAt"`
}

// HasBody reports whether the request carries a body. A JSON null counts as absent.
func (r Request) HasBody() bool {
	return len(r.Body) > 0 && string(r.Body) != "null"
}

// Environments holds the two variable sets of a project.
type Environments struct {
	Dev        map[string]string `json:"dev"`
	Production map[string]string `json:"production"`
}

// Get returns the variables for name, never nil.
func (e Environments) Get(name EnvironmentName) map[string]string {
	var vars map[string]string
	switch name {
	case EnvDev:
		vars = e.Dev
	case EnvProduction:
		vars = e.Production
	}
	if vars == nil {
		return map[string]string{}
	}
	return vars
}

// LastResponse is the persisted snapshot of the most recent execution of a request.
type LastResponse struct {
	Status     int               `json:"status,omitempty"`
	StatusText string            `json:"statusText,omitempty"`
	Data       any               `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Error      string            `json:"error,omitempty"`
	Duration   int64             `json:"duration"`  // ms
	Timestamp  int64             `json:"timestamp"` // epoch ms
}

// Response structures
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
