package api

// --- Reusable sub-types ---

// SecretEntry is one secret in a listing response.
type SecretEntry struct {
	ID                   string `json:"id"`
	CustomName           string `json:"custom_name"`
	DaysRemaining        int64  `json:"days_remaining"`
	TimeRemainingDisplay string `json:"time_remaining_display"`
	TimeRemainingType    string `json:"time_remaining_type"`
}

// --- Operation inputs/outputs ---

// CreateSecretInput is the body for message creation. TTL is in days; omitted
// falls back to the server default and an explicit 0 means permanent.
type CreateSecretInput struct {
	Body struct {
		EncryptedMessage string `json:"encrypted_message,omitempty" doc:"Client-side encrypted payload"`
		IV               string `json:"iv,omitempty" doc:"AES-GCM initialization vector, base64"`
		Salt             string `json:"salt,omitempty" doc:"Key derivation salt, base64"`
		TTL              *int   `json:"ttl,omitempty" doc:"Lifetime in days (0 = permanent)"`
		CustomName       string `json:"custom_name,omitempty" doc:"Optional display label"`
		CreatorUID       string `json:"creator_uid,omitempty" doc:"Opaque token identifying the creator"`
	}
}

type CreateSecretOutput struct {
	Body struct {
		URL  string `json:"url"`
		View string `json:"view"`
	}
}

type ViewSecretInput struct {
	Body struct {
		View string `json:"view,omitempty" doc:"Secret identifier"`
		UID  string `json:"uid,omitempty" doc:"Opaque token of the caller"`
	}
}

// ViewSecretOutput carries either the payload fields or a redirect message,
// never both.
type ViewSecretOutput struct {
	Body struct {
		EncryptedMessage string `json:"encrypted_message,omitempty"`
		IV               string `json:"iv,omitempty"`
		Salt             string `json:"salt,omitempty"`
		CustomName       string `json:"custom_name,omitempty"`
		IsOwner          *bool  `json:"is_owner,omitempty"`
		Message          string `json:"message,omitempty"`
		RedirectRoot     string `json:"redirect_root,omitempty"`
	}
}

type ClaimSecretInput struct {
	Body struct {
		View             string `json:"view,omitempty"`
		UID              string `json:"uid,omitempty" doc:"Token that becomes the owner"`
		EncryptedMessage string `json:"encrypted_message,omitempty" doc:"Payload re-encrypted under the claimer's key"`
		IV               string `json:"iv,omitempty"`
		Salt             string `json:"salt,omitempty"`
	}
}

type RenameSecretInput struct {
	Body struct {
		View       string `json:"view,omitempty"`
		UID        string `json:"uid,omitempty"`
		CustomName string `json:"custom_name,omitempty"`
	}
}

type DeleteSecretInput struct {
	Body struct {
		View string `json:"view,omitempty"`
		UID  string `json:"uid,omitempty"`
	}
}

// StatusOutput is the generic mutation result: {status: success|failed, message}.
type StatusOutput struct {
	Body struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
}

type ListSecretsInput struct {
	Body struct {
		UID     string `json:"uid,omitempty"`
		Page    int    `json:"page,omitempty"`
		PerPage int    `json:"per_page,omitempty"`
	}
}

type ListPendingInput struct {
	Body struct {
		CreatorUID string `json:"creator_uid,omitempty"`
		Page       int    `json:"page,omitempty"`
		PerPage    int    `json:"per_page,omitempty"`
	}
}

type ListSecretsOutput struct {
	Body struct {
		Secrets []SecretEntry `json:"secrets"`
		Page    int           `json:"page"`
		PerPage int           `json:"per_page"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
	}
}

type HealthCheckOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type AdminCleanupInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token signed with the admin secret"`
}

type AdminCleanupOutput struct {
	Body struct {
		Deleted int64 `json:"deleted"`
	}
}

type AdminBackupInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token signed with the admin secret"`
}

type AdminBackupOutput struct {
	Body struct {
		Key string `json:"key"`
	}
}
