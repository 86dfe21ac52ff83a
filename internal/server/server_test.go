package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/attachments"
	"github.com/krsoni/homeledger/internal/auth"
	"github.com/krsoni/homeledger/internal/household"
	"github.com/krsoni/homeledger/internal/ledger"
	"github.com/krsoni/homeledger/internal/storage/sqlite"
)

// fakeMailer records every send so the mail contract can be asserted.
type fakeMailer struct {
	registered []string
	invited    []string
	welcomed   []string
}

func (m *fakeMailer) SendRegistered(_ context.Context, to, _ string) error {
	m.registered = append(m.registered, to)
	return nil
}

func (m *fakeMailer) SendInvite(_ context.Context, to, _, _, _ string) error {
	m.invited = append(m.invited, to)
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.welcomed = append(m.welcomed, to)
	return nil
}

func setupTestServer(t *testing.T) (*httptest.Server, *fakeMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	receipts, err := attachments.NewDiskStore(filepath.Join(dir, "attachments"), "http://test")
	if err != nil {
		t.Fatalf("failed to create attachment store: %v", err)
	}

	mailer := &fakeMailer{}
	jwtManager := auth.NewJWTManager("test-secret-key-32-bytes-long!!!", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store)
	directory := household.NewDirectory(store)
	households := household.NewService(store, mailer, "http://test")
	ledgerSvc := ledger.NewService(store, directory, receipts, decimal.RequireFromString("52"), "INR")

	srv := New(authenticator, jwtManager, mailer, households, ledgerSvc, receipts, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mailer
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func registerUser(t *testing.T, ts *httptest.Server, name string) (token, userID string) {
	t.Helper()
	status, body := doJSON(t, ts, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    name + "@example.com",
		"name":     name,
		"password": "password123",
	})
	if status != http.StatusCreated {
		t.Fatalf("register returned %d: %v", status, body)
	}
	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

func TestServerFlow(t *testing.T) {
	ts, mailer := setupTestServer(t)

	aliceToken, aliceID := registerUser(t, ts, "alice")
	bobToken, _ := registerUser(t, ts, "bob")

	t.Run("registration sends a welcome mail", func(t *testing.T) {
		if len(mailer.registered) != 2 {
			t.Fatalf("registered mails = %v, want alice and bob", mailer.registered)
		}
		if mailer.registered[0] != "alice@example.com" || mailer.registered[1] != "bob@example.com" {
			t.Errorf("unexpected recipients: %v", mailer.registered)
		}
	})

	t.Run("duplicate registration conflicts", func(t *testing.T) {
		status, _ := doJSON(t, ts, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
			"email": "alice@example.com", "name": "alice", "password": "password123",
		})
		if status != http.StatusConflict {
			t.Errorf("status = %d, want 409", status)
		}
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		status, _ := doJSON(t, ts, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
			"email": "alice@example.com", "password": "wrong-password",
		})
		if status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", status)
		}
	})

	t.Run("protected routes require a token", func(t *testing.T) {
		status, _ := doJSON(t, ts, http.MethodGet, "/api/v1/expenses?household_id=x", "", nil)
		if status != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", status)
		}
	})

	// Alice creates the household, Bob joins by code.
	status, house := doJSON(t, ts, http.MethodPost, "/api/v1/households", aliceToken, map[string]any{"name": "Flat 302"})
	if status != http.StatusCreated {
		t.Fatalf("create household returned %d: %v", status, house)
	}
	houseID := house["id"].(string)
	joinCode := house["join_code"].(string)

	status, _ = doJSON(t, ts, http.MethodPost, "/api/v1/households/join", bobToken, map[string]any{"join_code": joinCode})
	if status != http.StatusOK {
		t.Fatalf("join returned %d", status)
	}
	if len(mailer.welcomed) != 1 || mailer.welcomed[0] != "bob@example.com" {
		t.Errorf("join welcome mails = %v, want bob", mailer.welcomed)
	}

	var expenseID string
	t.Run("recording an expense allocates obligations", func(t *testing.T) {
		status, body := doJSON(t, ts, http.MethodPost, "/api/v1/expenses", bobToken, map[string]any{
			"household_id": houseID,
			"amount":       "100.00",
			"category":     "Groceries",
		})
		if status != http.StatusCreated {
			t.Fatalf("create expense returned %d: %v", status, body)
		}
		expenseID = body["id"].(string)

		obligations := body["obligations"].([]any)
		if len(obligations) != 1 {
			t.Fatalf("expected 1 obligation, got %d", len(obligations))
		}
		o := obligations[0].(map[string]any)
		if o["user_id"] != aliceID || o["amount"] != "100" {
			t.Errorf("unexpected obligation: %v", o)
		}
	})

	t.Run("settling twice conflicts", func(t *testing.T) {
		status, _ := doJSON(t, ts, http.MethodPost, "/api/v1/expenses/"+expenseID+"/settle", aliceToken, nil)
		if status != http.StatusOK {
			t.Fatalf("settle returned %d", status)
		}
		status, _ = doJSON(t, ts, http.MethodPost, "/api/v1/expenses/"+expenseID+"/settle", aliceToken, nil)
		if status != http.StatusConflict {
			t.Errorf("second settle returned %d, want 409", status)
		}
	})

	t.Run("unknown expense is not found", func(t *testing.T) {
		status, _ := doJSON(t, ts, http.MethodGet, "/api/v1/expenses/no-such-id", aliceToken, nil)
		if status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
	})

	t.Run("outsiders cannot read the household", func(t *testing.T) {
		carolToken, _ := registerUser(t, ts, "carol")
		status, _ := doJSON(t, ts, http.MethodGet, "/api/v1/households/"+houseID, carolToken, nil)
		if status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", status)
		}
	})

	t.Run("the audit trail is visible to members", func(t *testing.T) {
		status, body := doJSON(t, ts, http.MethodGet, "/api/v1/households/"+houseID+"/audit", aliceToken, nil)
		if status != http.StatusOK {
			t.Fatalf("audit returned %d", status)
		}
		entries := body["entries"].([]any)
		if len(entries) < 2 {
			t.Errorf("expected created and settled entries, got %d", len(entries))
		}
	})
}
