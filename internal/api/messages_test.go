package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idone-su/inigma/internal/audit"
	"github.com/idone-su/inigma/internal/backup"
	"github.com/idone-su/inigma/internal/secrets"
	"github.com/idone-su/inigma/internal/storage"
)

func init() {
	audit.Enabled = false
}

const testNow int64 = 1_700_000_000

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, humatest.TestAPI) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr := secrets.NewManager(store, secrets.ManagerConfig{
		Now: func() int64 { return testNow },
	})
	srv := NewServer(mgr, "https://inigma.test", opts...)
	_, api := humatest.New(t)
	srv.registerMessages(api)
	return srv, api
}

func createSecret(t *testing.T, api humatest.TestAPI, body map[string]any) string {
	t.Helper()
	resp := api.Post("/api/create", body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out struct {
		URL  string `json:"url"`
		View string `json:"view"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.View, secrets.IDLength)
	return out.View
}

func TestCreateAndViewAPI(t *testing.T) {
	_, api := newTestServer(t)

	id := createSecret(t, api, map[string]any{
		"encrypted_message": "ct",
		"iv":                "iv",
		"salt":              "salt",
		"ttl":               1,
		"custom_name":       "deploy key",
		"creator_uid":       "creator-1",
	})

	resp := api.Post("/api/view", map[string]any{"view": id, "uid": "someone"})
	assert.Equal(t, http.StatusOK, resp.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "ct", out["encrypted_message"])
	assert.Equal(t, "iv", out["iv"])
	assert.Equal(t, "salt", out["salt"])
	assert.Equal(t, "deploy key", out["custom_name"])
	// Present even when false so clients never guess at ownership.
	assert.Contains(t, out, "is_owner")
	assert.Equal(t, false, out["is_owner"])
	assert.NotContains(t, out, "redirect_root")
	assert.NotContains(t, out, "creator_uid")
}

func TestCreateRejectsMissingFields(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/create", map[string]any{"encrypted_message": "ct"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.JSONEq(t, `{"code":400,"message":"missing required fields"}`, resp.Body.String())
}

func TestCreateSanitizesCustomName(t *testing.T) {
	_, api := newTestServer(t)

	id := createSecret(t, api, map[string]any{
		"encrypted_message": "ct",
		"iv":                "iv",
		"salt":              "salt",
		"ttl":               1,
		"custom_name":       "  <script>alert(1)</script>prod key ",
		"creator_uid":       "creator-1",
	})

	resp := api.Post("/api/view", map[string]any{"view": id, "uid": "x"})
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "alert(1)prod key", out["custom_name"])
}

func TestViewMissingRedirects(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/view", map[string]any{"view": "nope_nope_nope_nope_nope_", "uid": "u"})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"message":"Message is not available!","redirect_root":"true"}`, resp.Body.String())

	// Malformed ids get the same treatment without touching storage.
	resp = api.Post("/api/view", map[string]any{"view": "../etc/passwd", "uid": "u"})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"message":"Invalid view parameter","redirect_root":"true"}`, resp.Body.String())
}

func TestViewFailuresShareOneBody(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mgr := secrets.NewManager(store, secrets.ManagerConfig{
		Now: func() int64 { return testNow },
	})
	srv := NewServer(mgr, "https://inigma.test")
	_, api := humatest.New(t)
	srv.registerMessages(api)

	// An id that was never issued.
	missingID, err := secrets.GenerateID()
	require.NoError(t, err)

	// An expired secret, planted directly so the clock does not have to move.
	expiredID, err := secrets.GenerateID()
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), &storage.Secret{
		ID:         expiredID,
		TTL:        testNow,
		CreatorUID: "creator-1",
		Ciphertext: "ct", IV: "iv", Salt: "salt",
		CreatedAt: testNow - 60,
	}))

	// A secret claimed by somebody else.
	claimedID := createSecret(t, api, map[string]any{
		"encrypted_message": "ct", "iv": "iv", "salt": "salt",
		"ttl": 1, "creator_uid": "creator-1",
	})
	resp := api.Post("/api/update", map[string]any{
		"view": claimedID, "uid": "owner-1",
		"encrypted_message": "ct2", "iv": "iv2", "salt": "salt2",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	// A viewer hitting any of the three gets byte-identical responses,
	// so the reason cannot be told apart from outside.
	var bodies []string
	for _, id := range []string{missingID, expiredID, claimedID} {
		resp := api.Post("/api/view", map[string]any{"view": id, "uid": "stranger"})
		require.Equal(t, http.StatusOK, resp.Code)
		bodies = append(bodies, resp.Body.String())
	}
	assert.JSONEq(t, `{"message":"Message is not available!","redirect_root":"true"}`, bodies[0])
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
}

func TestClaimFlowAPI(t *testing.T) {
	_, api := newTestServer(t)

	id := createSecret(t, api, map[string]any{
		"encrypted_message": "ct",
		"iv":                "iv",
		"salt":              "salt",
		"ttl":               1,
		"creator_uid":       "creator-1",
	})

	resp := api.Post("/api/update", map[string]any{
		"view": id, "uid": "owner-1",
		"encrypted_message": "ct2", "iv": "iv2", "salt": "salt2",
	})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"success","message":"secret owned"}`, resp.Body.String())

	// A second claim loses.
	resp = api.Post("/api/update", map[string]any{
		"view": id, "uid": "owner-2",
		"encrypted_message": "ct3", "iv": "iv3", "salt": "salt3",
	})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"failed","message":"Secret already owned"}`, resp.Body.String())

	// The loser cannot view; the winner sees their own payload.
	resp = api.Post("/api/view", map[string]any{"view": id, "uid": "owner-2"})
	assert.JSONEq(t, `{"message":"Message is not available!","redirect_root":"true"}`, resp.Body.String())

	resp = api.Post("/api/view", map[string]any{"view": id, "uid": "owner-1"})
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "ct2", out["encrypted_message"])
	assert.Equal(t, true, out["is_owner"])
}

func TestClaimMissingSecretAPI(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/update", map[string]any{
		"view": "missing_missing_missing__", "uid": "u",
		"encrypted_message": "ct", "iv": "iv", "salt": "salt",
	})
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"failed","message":"No such secret"}`, resp.Body.String())
}

func TestRenameAndDeleteAPI(t *testing.T) {
	_, api := newTestServer(t)

	id := createSecret(t, api, map[string]any{
		"encrypted_message": "ct",
		"iv":                "iv",
		"salt":              "salt",
		"ttl":               1,
		"creator_uid":       "creator-1",
	})
	resp := api.Post("/api/update", map[string]any{
		"view": id, "uid": "owner-1",
		"encrypted_message": "ct2", "iv": "iv2", "salt": "salt2",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	// Only the owner can rename; anyone else learns nothing.
	resp = api.Post("/api/custom-name", map[string]any{"view": id, "uid": "intruder", "custom_name": "mine"})
	assert.JSONEq(t, `{"status":"failed","message":"Secret not found"}`, resp.Body.String())

	resp = api.Post("/api/custom-name", map[string]any{"view": id, "uid": "owner-1", "custom_name": "renamed"})
	assert.JSONEq(t, `{"status":"success","message":"Custom name updated"}`, resp.Body.String())

	resp = api.Post("/api/view", map[string]any{"view": id, "uid": "owner-1"})
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "renamed", out["custom_name"])

	// Same story for delete.
	resp = api.Post("/api/delete", map[string]any{"view": id, "uid": "intruder"})
	assert.JSONEq(t, `{"status":"failed","message":"Secret not found"}`, resp.Body.String())

	resp = api.Post("/api/delete", map[string]any{"view": id, "uid": "owner-1"})
	assert.JSONEq(t, `{"status":"success","message":"Secret deleted"}`, resp.Body.String())

	resp = api.Post("/api/view", map[string]any{"view": id, "uid": "owner-1"})
	assert.JSONEq(t, `{"message":"Message is not available!","redirect_root":"true"}`, resp.Body.String())
}

func TestListAPIs(t *testing.T) {
	_, api := newTestServer(t)

	id := createSecret(t, api, map[string]any{
		"encrypted_message": "ct",
		"iv":                "iv",
		"salt":              "salt",
		"ttl":               1,
		"custom_name":       "pending one",
		"creator_uid":       "creator-1",
	})

	// Unclaimed secrets show up in the creator's pending list.
	resp := api.Post("/api/list-pending", map[string]any{"creator_uid": "creator-1"})
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		Secrets []SecretEntry `json:"secrets"`
		Page    int           `json:"page"`
		PerPage int           `json:"per_page"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Secrets, 1)
	assert.Equal(t, id, out.Secrets[0].ID)
	assert.Equal(t, "pending one", out.Secrets[0].CustomName)
	assert.Equal(t, int64(1), out.Secrets[0].DaysRemaining)
	assert.Equal(t, "1 day", out.Secrets[0].TimeRemainingDisplay)
	assert.Equal(t, "days", out.Secrets[0].TimeRemainingType)
	assert.Equal(t, 1, out.Total)
	assert.False(t, out.HasMore)

	// After the claim it moves to the owner's list.
	api.Post("/api/update", map[string]any{
		"view": id, "uid": "owner-1",
		"encrypted_message": "ct2", "iv": "iv2", "salt": "salt2",
	})

	resp = api.Post("/api/list-pending", map[string]any{"creator_uid": "creator-1"})
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Empty(t, out.Secrets)

	resp = api.Post("/api/list", map[string]any{"uid": "owner-1"})
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Secrets, 1)
	assert.Equal(t, id, out.Secrets[0].ID)
}

func TestListRejectsBadPagination(t *testing.T) {
	_, api := newTestServer(t)

	resp := api.Post("/api/list", map[string]any{"uid": "u", "page": -1})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.Post("/api/list", map[string]any{"uid": "u", "per_page": 500})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.Post("/api/list", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminCleanupAPI(t *testing.T) {
	const secret = "test-admin-secret"
	srv, api := newTestServer(t, WithAdminSecret(secret))
	srv.registerAdmin(api)

	// No token.
	resp := api.Post("/api/admin/cleanup")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// Token signed with the wrong key.
	badToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	resp = api.Post("/api/admin/cleanup", "Authorization: Bearer "+badToken)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// Valid token.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp = api.Post("/api/admin/cleanup", "Authorization: Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"deleted":0}`, resp.Body.String())
}

func TestAdminBackupAPI(t *testing.T) {
	const secret = "test-admin-secret"
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	provider, err := backup.NewLocalProvider(t.TempDir())
	require.NoError(t, err)
	runner := backup.NewRunner(store, provider, 0)
	sched := backup.NewScheduler(runner.Run, 0)
	t.Cleanup(sched.Shutdown)

	mgr := secrets.NewManager(store, secrets.ManagerConfig{
		Now: func() int64 { return testNow },
	})
	srv := NewServer(mgr, "https://inigma.test", WithAdminSecret(secret), WithBackups(sched))
	_, api := humatest.New(t)
	srv.registerAdmin(api)

	// No token.
	resp := api.Post("/api/admin/backup")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// Valid token triggers a snapshot and returns its key.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp = api.Post("/api/admin/backup", "Authorization: Bearer "+token)
	assert.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.NotEmpty(t, out.Key)

	snaps, err := provider.List(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, out.Key, snaps[0].Key)
}
