package validator

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"collection-runner/internal/models"
)

// ValidateImport parses and validates an exported project list.
func ValidateImport(data []byte, maxRequestSize int64, maxHeaderCount int) ([]models.Project, error) {
	if int64(len(data)) > maxRequestSize {
		return nil, fmt.Errorf("import exceeds maximum size of %d bytes", maxRequestSize)
	}

	var projects []models.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("invalid JSON format: expected an array of projects: %w", err)
	}

	for i, project := range projects {
		if strings.TrimSpace(project.Name) == "" {
			return nil, fmt.Errorf("project #%d has no name", i+1)
		}
		for _, req := range project.Requests {
			if err := ValidateRequest(req, maxHeaderCount); err != nil {
				return nil, fmt.Errorf("project '%s': invalid request '%s': %w", project.Name, req.Name, err)
			}
		}
		for _, folder := range project.Folders {
			for _, req := range folder.Requests {
				if err := ValidateRequest(req, maxHeaderCount); err != nil {
					return nil, fmt.Errorf("project '%s', folder '%s': invalid request '%s': %w", project.Name, folder.Name, req.Name, err)
				}
			}
		}
	}

	return projects, nil
}

// ValidateRequest checks the stored shape of a request.
func ValidateRequest(req models.Request, maxHeaderCount int) error {
	if !models.AllowedMethods[req.Method] {
		return fmt.Errorf("unsupported HTTP method: %s (allowed: GET, POST, PUT, PATCH, DELETE)", req.Method)
	}

	if req.URL != "" {
		if err := validateURL(req.URL); err != nil {
			return err
		}
	}

	if len(req.Headers) > maxHeaderCount {
		return fmt.Errorf("request has %d headers, exceeding limit of %d", len(req.Headers), maxHeaderCount)
	}

	if len(req.Body) > 0 && !json.Valid(req.Body) {
		return fmt.Errorf("body is not valid JSON")
	}

	if req.ExpectedSchema != "" && !json.Valid([]byte(req.ExpectedSchema)) {
		return fmt.Errorf("expected schema is not valid JSON")
	}

	return nil
}

func validateURL(urlStr string) error {
	// The scheme may come from a variable such as {{base_url}}
	if strings.Contains(urlStr, "{{") && strings.Contains(urlStr, "}}") {
		return nil
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (only http and https are allowed)", parsed.Scheme)
	}

	return nil
}
