package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/idone-su/inigma/internal/audit"
)

// registerAdmin registers operator endpoints, gated by HMAC-signed bearer
// tokens. Only wired when an admin secret is configured.
func (s *Server) registerAdmin(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "adminCleanup",
		Method:      http.MethodPost,
		Path:        "/api/admin/cleanup",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *AdminCleanupInput) (*AdminCleanupOutput, error) {
		subject, err := s.validateAdminToken(input.Authorization)
		if err != nil {
			ip, _ := ctx.Value(clientIPKey).(string)
			audit.Event{
				Actor:  "anonymous",
				Action: "adminCleanup",
				Status: audit.StatusDenied,
				Reason: err.Error(),
				IP:     ip,
			}.Warn("Audit Log: Admin Request")
			return nil, huma.NewError(http.StatusUnauthorized, "invalid admin token")
		}

		deleted, err := s.manager.RunCleanup(ctx)
		if err != nil {
			return nil, huma.NewError(http.StatusServiceUnavailable, "cleanup failed")
		}

		slog.Info("admin cleanup completed", "deleted", deleted, "subject", subject)
		auditEvent(ctx, "adminCleanup", subject, "", audit.StatusGranted, "")
		out := &AdminCleanupOutput{}
		out.Body.Deleted = deleted
		return out, nil
	})

	if s.backups == nil {
		return
	}

	huma.Register(api, huma.Operation{
		OperationID: "adminBackup",
		Method:      http.MethodPost,
		Path:        "/api/admin/backup",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *AdminBackupInput) (*AdminBackupOutput, error) {
		subject, err := s.validateAdminToken(input.Authorization)
		if err != nil {
			ip, _ := ctx.Value(clientIPKey).(string)
			audit.Event{
				Actor:  "anonymous",
				Action: "adminBackup",
				Status: audit.StatusDenied,
				Reason: err.Error(),
				IP:     ip,
			}.Warn("Audit Log: Admin Request")
			return nil, huma.NewError(http.StatusUnauthorized, "invalid admin token")
		}

		key, err := s.backups.RunOnce(ctx)
		if err != nil {
			slog.Error("admin backup failed", "error", err)
			return nil, huma.NewError(http.StatusServiceUnavailable, "backup failed")
		}

		slog.Info("admin backup completed", "key", key, "subject", subject)
		auditEvent(ctx, "adminBackup", subject, "", audit.StatusGranted, "")
		out := &AdminBackupOutput{}
		out.Body.Key = key
		return out, nil
	})
}

// validateAdminToken checks a "Bearer <jwt>" header against the admin secret
// and returns the token subject.
func (s *Server) validateAdminToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, prefix)

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.adminSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		subject = "admin"
	}
	return subject, nil
}
