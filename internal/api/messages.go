package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/idone-su/inigma/internal/audit"
	"github.com/idone-su/inigma/internal/secrets"
	"github.com/idone-su/inigma/internal/storage"
)

// idPattern matches URL-safe secret identifiers.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// tagPattern strips anything that looks like markup from display labels.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// sanitizeName removes markup and control characters from a display label
// and caps its length.
func sanitizeName(name string) string {
	name = tagPattern.ReplaceAllString(name, "")
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if len(name) > secrets.MaxCustomNameLength {
		name = name[:secrets.MaxCustomNameLength]
	}
	return name
}

// auditEvent logs a secret operation with the client IP and request id from
// the request context.
func auditEvent(ctx context.Context, action, actor, secretID, status, reason string) {
	ip, _ := ctx.Value(clientIPKey).(string)
	rid, _ := ctx.Value(requestIDKey).(string)
	if actor == "" {
		actor = "anonymous"
	}
	e := audit.Event{
		Actor:     actor,
		Action:    action,
		Status:    status,
		SecretID:  secretID,
		IP:        ip,
		RequestID: rid,
	}
	if status == audit.StatusGranted {
		e.Info("Audit Log: Secret Operation")
	} else {
		e.Reason = reason
		e.Warn("Audit Log: Secret Operation")
	}
}

// failed fills a StatusOutput with a failure message.
func failed(msg string) *StatusOutput {
	out := &StatusOutput{}
	out.Body.Status = "failed"
	out.Body.Message = msg
	return out
}

// succeeded fills a StatusOutput with a success message.
func succeeded(msg string) *StatusOutput {
	out := &StatusOutput{}
	out.Body.Status = "success"
	out.Body.Message = msg
	return out
}

// viewGoneMessage is the single user-facing wording for a secret that is
// missing, expired, or not viewable by this caller. One string for all
// three, so an outside caller cannot tell which condition applied.
const viewGoneMessage = "Message is not available!"

// redirect fills a ViewSecretOutput with a go-away message.
func redirect(msg string) *ViewSecretOutput {
	out := &ViewSecretOutput{}
	out.Body.Message = msg
	out.Body.RedirectRoot = "true"
	return out
}

func (s *Server) registerMessages(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createSecret",
		Method:      http.MethodPost,
		Path:        "/api/create",
		Tags:        []string{"Secrets"},
	}, s.handleCreate)

	huma.Register(api, huma.Operation{
		OperationID: "viewSecret",
		Method:      http.MethodPost,
		Path:        "/api/view",
		Tags:        []string{"Secrets"},
	}, s.handleView)

	huma.Register(api, huma.Operation{
		OperationID: "claimSecret",
		Method:      http.MethodPost,
		Path:        "/api/update",
		Tags:        []string{"Secrets"},
	}, s.handleClaim)

	huma.Register(api, huma.Operation{
		OperationID: "renameSecret",
		Method:      http.MethodPost,
		Path:        "/api/custom-name",
		Tags:        []string{"Secrets"},
	}, s.handleRename)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSecret",
		Method:      http.MethodPost,
		Path:        "/api/delete",
		Tags:        []string{"Secrets"},
	}, s.handleDelete)

	huma.Register(api, huma.Operation{
		OperationID: "listSecrets",
		Method:      http.MethodPost,
		Path:        "/api/list",
		Tags:        []string{"Secrets"},
	}, s.handleList)

	huma.Register(api, huma.Operation{
		OperationID: "listPendingSecrets",
		Method:      http.MethodPost,
		Path:        "/api/list-pending",
		Tags:        []string{"Secrets"},
	}, s.handleListPending)
}

func (s *Server) handleCreate(ctx context.Context, input *CreateSecretInput) (*CreateSecretOutput, error) {
	b := input.Body
	if b.EncryptedMessage == "" || b.IV == "" || b.Salt == "" || b.CreatorUID == "" {
		return nil, errInvalid("missing required fields")
	}
	ttlDays := s.defaultTTLDays
	if b.TTL != nil {
		ttlDays = *b.TTL
	}

	id, err := s.manager.Create(ctx, secrets.CreateParams{
		Ciphertext: b.EncryptedMessage,
		IV:         b.IV,
		Salt:       b.Salt,
		TTLDays:    ttlDays,
		CustomName: sanitizeName(b.CustomName),
		CreatorUID: b.CreatorUID,
	})
	if err != nil {
		secretOpsTotal.WithLabelValues("create", "error").Inc()
		if errors.Is(err, secrets.ErrInvalidInput) {
			return nil, errInvalid(err.Error())
		}
		auditEvent(ctx, "createSecret", b.CreatorUID, "", audit.StatusFailed, err.Error())
		return nil, huma.NewError(http.StatusServiceUnavailable, "failed to store message")
	}

	secretOpsTotal.WithLabelValues("create", "ok").Inc()
	auditEvent(ctx, "createSecret", b.CreatorUID, id, audit.StatusGranted, "")
	out := &CreateSecretOutput{}
	out.Body.URL = s.domain + "/"
	out.Body.View = id
	return out, nil
}

func (s *Server) handleView(ctx context.Context, input *ViewSecretInput) (*ViewSecretOutput, error) {
	b := input.Body
	if b.View == "" || !idPattern.MatchString(b.View) {
		secretOpsTotal.WithLabelValues("view", "invalid").Inc()
		return redirect("Invalid view parameter"), nil
	}

	// The three failure tags share one client-visible wording; only the
	// metrics labels and audit log keep them apart.
	res, err := s.manager.View(ctx, b.View, b.UID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		secretOpsTotal.WithLabelValues("view", "not_found").Inc()
		return redirect(viewGoneMessage), nil
	case errors.Is(err, secrets.ErrExpired):
		secretOpsTotal.WithLabelValues("view", "expired").Inc()
		return redirect(viewGoneMessage), nil
	case errors.Is(err, secrets.ErrDenied):
		secretOpsTotal.WithLabelValues("view", "denied").Inc()
		auditEvent(ctx, "viewSecret", b.UID, b.View, audit.StatusDenied, "not the owner")
		return redirect(viewGoneMessage), nil
	default:
		secretOpsTotal.WithLabelValues("view", "error").Inc()
		return nil, errUnavailable()
	}

	secretOpsTotal.WithLabelValues("view", "ok").Inc()
	out := &ViewSecretOutput{}
	out.Body.EncryptedMessage = res.Ciphertext
	out.Body.IV = res.IV
	out.Body.Salt = res.Salt
	out.Body.CustomName = res.CustomName
	// Always serialized on the success payload, even when false; the
	// redirect envelope omits it by leaving the pointer nil.
	out.Body.IsOwner = &res.IsOwner
	return out, nil
}

func (s *Server) handleClaim(ctx context.Context, input *ClaimSecretInput) (*StatusOutput, error) {
	b := input.Body
	if b.View == "" || !idPattern.MatchString(b.View) {
		return failed("Invalid view parameter"), nil
	}
	if b.UID == "" || b.EncryptedMessage == "" || b.IV == "" || b.Salt == "" {
		return failed("Missing required parameters"), nil
	}

	err := s.manager.Claim(ctx, b.View, b.UID, b.EncryptedMessage, b.IV, b.Salt)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		secretOpsTotal.WithLabelValues("claim", "not_found").Inc()
		return failed("No such secret"), nil
	case errors.Is(err, storage.ErrAlreadyOwned):
		secretOpsTotal.WithLabelValues("claim", "already_owned").Inc()
		auditEvent(ctx, "claimSecret", b.UID, b.View, audit.StatusDenied, "already owned")
		return failed("Secret already owned"), nil
	case errors.Is(err, secrets.ErrInvalidInput):
		return failed("Missing required parameters"), nil
	default:
		secretOpsTotal.WithLabelValues("claim", "error").Inc()
		return nil, errUnavailable()
	}

	secretOpsTotal.WithLabelValues("claim", "ok").Inc()
	auditEvent(ctx, "claimSecret", b.UID, b.View, audit.StatusGranted, "")
	return succeeded("secret owned"), nil
}

func (s *Server) handleRename(ctx context.Context, input *RenameSecretInput) (*StatusOutput, error) {
	b := input.Body
	if b.View == "" || !idPattern.MatchString(b.View) || b.UID == "" {
		return nil, errInvalid("missing required parameters")
	}

	err := s.manager.Rename(ctx, b.View, b.UID, sanitizeName(b.CustomName))
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		// Missing and not-owned are indistinguishable on purpose.
		secretOpsTotal.WithLabelValues("rename", "not_found").Inc()
		auditEvent(ctx, "renameSecret", b.UID, b.View, audit.StatusDenied, "missing or not owned")
		return failed("Secret not found"), nil
	case errors.Is(err, secrets.ErrInvalidInput):
		return nil, errInvalid(err.Error())
	default:
		secretOpsTotal.WithLabelValues("rename", "error").Inc()
		return nil, errUnavailable()
	}

	secretOpsTotal.WithLabelValues("rename", "ok").Inc()
	auditEvent(ctx, "renameSecret", b.UID, b.View, audit.StatusGranted, "")
	return succeeded("Custom name updated"), nil
}

func (s *Server) handleDelete(ctx context.Context, input *DeleteSecretInput) (*StatusOutput, error) {
	b := input.Body
	if b.View == "" || !idPattern.MatchString(b.View) || b.UID == "" {
		return nil, errInvalid("missing required parameters")
	}

	err := s.manager.Remove(ctx, b.View, b.UID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		secretOpsTotal.WithLabelValues("delete", "not_found").Inc()
		auditEvent(ctx, "deleteSecret", b.UID, b.View, audit.StatusDenied, "missing or not owned")
		return failed("Secret not found"), nil
	default:
		secretOpsTotal.WithLabelValues("delete", "error").Inc()
		return nil, errUnavailable()
	}

	secretOpsTotal.WithLabelValues("delete", "ok").Inc()
	auditEvent(ctx, "deleteSecret", b.UID, b.View, audit.StatusGranted, "")
	return succeeded("Secret deleted"), nil
}

func (s *Server) handleList(ctx context.Context, input *ListSecretsInput) (*ListSecretsOutput, error) {
	b := input.Body
	if b.UID == "" {
		return nil, errInvalid("invalid or missing uid")
	}
	res, err := s.manager.ListOwned(ctx, b.UID, normalizePage(b.Page), s.perPage(b.PerPage))
	return s.listOutput(res, err)
}

func (s *Server) handleListPending(ctx context.Context, input *ListPendingInput) (*ListSecretsOutput, error) {
	b := input.Body
	if b.CreatorUID == "" {
		return nil, errInvalid("invalid or missing creator_uid")
	}
	res, err := s.manager.ListPending(ctx, b.CreatorUID, normalizePage(b.Page), s.perPage(b.PerPage))
	return s.listOutput(res, err)
}

func (s *Server) listOutput(res *secrets.ListResult, err error) (*ListSecretsOutput, error) {
	if err != nil {
		if errors.Is(err, secrets.ErrInvalidInput) {
			return nil, errInvalid(err.Error())
		}
		return nil, errUnavailable()
	}

	out := &ListSecretsOutput{}
	out.Body.Secrets = make([]SecretEntry, 0, len(res.Secrets))
	for _, e := range res.Secrets {
		out.Body.Secrets = append(out.Body.Secrets, SecretEntry{
			ID:                   e.ID,
			CustomName:           e.CustomName,
			DaysRemaining:        e.Remaining.Value,
			TimeRemainingDisplay: e.Remaining.Display,
			TimeRemainingType:    e.Remaining.Kind,
		})
	}
	out.Body.Page = res.Page
	out.Body.PerPage = res.PerPage
	out.Body.Total = res.Total
	out.Body.HasMore = res.HasMore
	return out, nil
}

// normalizePage maps an omitted page to the first one; out-of-range values
// are rejected downstream.
func normalizePage(page int) int {
	if page == 0 {
		return 1
	}
	return page
}

// perPage maps an omitted per_page to the server default.
func (s *Server) perPage(perPage int) int {
	if perPage == 0 {
		return s.pageSize
	}
	return perPage
}
