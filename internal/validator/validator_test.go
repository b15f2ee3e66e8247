package validator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"collection-runner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.Request
		wantErr string
	}{
		{
			name: "valid",
			req:  models.Request{Method: "POST", URL: "https://api.test/x", Body: json.RawMessage(`{"a":1}`)},
		},
		{
			name: "templated url skips scheme check",
			req:  models.Request{Method: "GET", URL: "{{HOST}}/users"},
		},
		{
			name:    "bad method",
			req:     models.Request{Method: "TRACE"},
			wantErr: "unsupported HTTP method",
		},
		{
			name:    "bad scheme",
			req:     models.Request{Method: "GET", URL: "ftp://x"},
			wantErr: "unsupported URL scheme",
		},
		{
			name:    "too many headers",
			req:     models.Request{Method: "GET", Headers: map[string]string{"a": "1", "b": "2", "c": "3"}},
			wantErr: "exceeding limit",
		},
		{
			name:    "invalid body",
			req:     models.Request{Method: "GET", Body: json.RawMessage(`{`)},
			wantErr: "body is not valid JSON",
		},
		{
			name:    "invalid schema",
			req:     models.Request{Method: "GET", ExpectedSchema: "{"},
			wantErr: "expected schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req, 2)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateImport(t *testing.T) {
	data := []byte(`[{"name":"p","requests":[{"name":"r","method":"GET","url":"http://x"}],"folders":[{"name":"f","requests":[{"name":"bad","method":"NOPE"}]}]}]`)

	_, err := ValidateImport(data, 1<<20, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "folder 'f'")

	_, err = ValidateImport([]byte(`{"name":"p"}`), 1<<20, 10)
	assert.Error(t, err)

	_, err = ValidateImport(data, 10, 10)
	assert.ErrorContains(t, err, "maximum size")

	projects, err := ValidateImport([]byte(`[{"name":"p","requests":[{"name":"r","method":"GET"}]}]`), 1<<20, 10)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "r", projects[0].Requests[0].Name)
}

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if addrs, ok := f[host]; ok {
		return addrs, nil
	}
	return nil, errors.New("no such host")
}

func TestURLGuard_Check(t *testing.T) {
	resolver := fakeResolver{
		"public.test":   {{IP: net.ParseIP("93.184.216.34")}},
		"internal.test": {{IP: net.ParseIP("10.1.2.3")}},
		"meta.test":     {{IP: net.ParseIP("169.254.169.254")}},
	}

	strict := &URLGuard{Resolver: resolver}
	assert.NoError(t, strict.Check(context.Background(), "https://public.test/a"))
	assert.ErrorContains(t, strict.Check(context.Background(), "http://localhost:8080"), "localhost")
	assert.ErrorContains(t, strict.Check(context.Background(), "http://internal.test"), "private")
	assert.ErrorContains(t, strict.Check(context.Background(), "http://meta.test"), "private")
	assert.ErrorContains(t, strict.Check(context.Background(), "file:///etc/passwd"), "scheme")
	assert.ErrorContains(t, strict.Check(context.Background(), "http://unknown.test"), "resolve")

	permissive := &URLGuard{AllowLocalhost: true, AllowPrivateIPs: true, Resolver: resolver}
	assert.NoError(t, permissive.Check(context.Background(), "http://localhost:8080"))
	assert.NoError(t, permissive.Check(context.Background(), "http://unknown.test"))
}
