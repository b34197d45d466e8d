package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/atinyakov/gvagate/internal/models"
	"github.com/atinyakov/gvagate/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeDirectoryService implements DirectoryService for testing.
type fakeDirectoryService struct {
	groups    []models.GroupRecord
	groupsErr error
	check     models.CheckResult
	checkErr  error
	auth      *models.AuthResponse
	authErr   error

	gotLogin    string
	gotPassword string
}

func (f *fakeDirectoryService) ListGroups(ctx context.Context) ([]models.GroupRecord, error) {
	return f.groups, f.groupsErr
}

func (f *fakeDirectoryService) CheckCredential(ctx context.Context, login, password string) (models.CheckResult, error) {
	f.gotLogin, f.gotPassword = login, password
	return f.check, f.checkErr
}

func (f *fakeDirectoryService) Authenticate(ctx context.Context, login, password string) (*models.AuthResponse, error) {
	f.gotLogin, f.gotPassword = login, password
	return f.auth, f.authErr
}

func TestDirectoryHandler_ListGroups(t *testing.T) {
	tests := []struct {
		name         string
		service      *fakeDirectoryService
		expectedCode int
		expectedBody string
	}{
		{
			name: "groups listed",
			service: &fakeDirectoryService{groups: []models.GroupRecord{
				{GID: 10004, Name: "teachers", Members: []string{"quique"}},
			}},
			expectedCode: http.StatusOK,
			expectedBody: `[{"gid":10004,"name":"teachers","members":["quique"]}]`,
		},
		{
			name:         "nil list encodes as empty array",
			service:      &fakeDirectoryService{},
			expectedCode: http.StatusOK,
			expectedBody: `[]`,
		},
		{
			name:         "service error",
			service:      &fakeDirectoryService{groupsErr: errors.New("boom")},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/get_groups", nil)
			h := NewDirectoryHandler(tt.service, nil)
			h.ListGroups(rec, req)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, res.StatusCode)
			}
			if tt.expectedBody != "" {
				if got := strings.TrimSpace(rec.Body.String()); got != tt.expectedBody {
					t.Errorf("expected body %s, got %s", tt.expectedBody, got)
				}
			}
		})
	}
}

func TestDirectoryHandler_Login(t *testing.T) {
	svc := &fakeDirectoryService{check: models.CheckResult{User: "alu01"}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login?user=alu01&password=s%26cret", nil)

	NewDirectoryHandler(svc, nil).Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if svc.gotLogin != "alu01" || svc.gotPassword != "s&cret" {
		t.Errorf("service received %q/%q", svc.gotLogin, svc.gotPassword)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"user":"alu01","success":false}` {
		t.Errorf("unexpected body %s", got)
	}
}

func TestDirectoryHandler_LoginError(t *testing.T) {
	svc := &fakeDirectoryService{checkErr: errors.New("db down")}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/login?user=a&password=b", nil)

	NewDirectoryHandler(svc, nil).Login(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestDirectoryHandler_Authenticate(t *testing.T) {
	okResp := &models.AuthResponse{
		User:         models.AuthUser{Login: "alu01", UID: 1},
		MachineToken: "tok",
	}

	tests := []struct {
		name         string
		service      *fakeDirectoryService
		expectedCode int
		expectedBody string
	}{
		{
			name:         "success",
			service:      &fakeDirectoryService{auth: okResp},
			expectedCode: http.StatusOK,
		},
		{
			name:         "unknown user",
			service:      &fakeDirectoryService{authErr: service.ErrUnknownUser},
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized",
		},
		{
			name:         "wrong password",
			service:      &fakeDirectoryService{authErr: service.ErrWrongPassword},
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized",
		},
		{
			name:         "missing profile",
			service:      &fakeDirectoryService{authErr: service.ErrMissingProfile},
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized",
		},
		{
			name:         "internal failure",
			service:      &fakeDirectoryService{authErr: errors.New("db down")},
			expectedCode: http.StatusUnauthorized,
			expectedBody: "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"user": {"alu01"}, "passwd": {"pw"}}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/authenticate", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			NewDirectoryHandler(tt.service, nil).Authenticate(rec, req)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, res.StatusCode)
			}
			if tt.service.gotLogin != "alu01" || tt.service.gotPassword != "pw" {
				t.Errorf("service received %q/%q", tt.service.gotLogin, tt.service.gotPassword)
			}
			if tt.expectedBody != "" {
				if rec.Body.String() != tt.expectedBody {
					t.Errorf("expected body %q, got %q", tt.expectedBody, rec.Body.String())
				}
				if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
					t.Errorf("expected text/plain, got %q", ct)
				}
			}
		})
	}
}

func TestDirectoryHandler_AuthenticateNeverLogsPassword(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	svc := &fakeDirectoryService{authErr: service.ErrWrongPassword}
	form := url.Values{"user": {"alu01"}, "passwd": {"topsecret"}}
	req := httptest.NewRequest("POST", "/authenticate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	NewDirectoryHandler(svc, zap.New(core)).Authenticate(httptest.NewRecorder(), req)

	if logs.Len() == 0 {
		t.Fatal("expected the rejection to be logged")
	}
	for _, e := range logs.All() {
		var buf bytes.Buffer
		for k, v := range e.ContextMap() {
			buf.WriteString(k)
			buf.WriteString("=")
			if s, ok := v.(string); ok {
				buf.WriteString(s)
			}
			buf.WriteString(" ")
		}
		if strings.Contains(e.Message+buf.String(), "topsecret") {
			t.Errorf("log entry leaks password: %s %s", e.Message, buf.String())
		}
	}
}

func TestDirectoryHandler_AuthenticateSuccessBody(t *testing.T) {
	svc := &fakeDirectoryService{auth: &models.AuthResponse{
		User: models.AuthUser{
			Login:  "alu01",
			UID:    288430185,
			GID:    models.GroupRefs{{Name: "Domain Users", GID: 288400513}},
			Home:   "/home/alu01",
			Shell:  "/bin/bash",
			Groups: models.GroupRefs{{Name: "teachers", GID: 10003}},
		},
		MachineToken: "tok",
	}}
	req := httptest.NewRequest("POST", "/", strings.NewReader("user=alu01&passwd=pw"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	NewDirectoryHandler(svc, nil).Authenticate(rec, req)

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if string(payload["machine_token"]) != `"tok"` {
		t.Errorf("machine_token = %s", payload["machine_token"])
	}
	var user map[string]json.RawMessage
	if err := json.Unmarshal(payload["user"], &user); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	for _, k := range []string{"login", "uid", "gid", "name", "surname", "home", "shell", "password_expire", "groups"} {
		if _, ok := user[k]; !ok {
			t.Errorf("user payload misses %q", k)
		}
	}
	if string(user["gid"]) != `{"Domain Users":288400513}` {
		t.Errorf("gid = %s", user["gid"])
	}
}
