package model

import (
	"time"

	"github.com/google/uuid"
)

// DenyReason identifies which check refused access.
type DenyReason string

const (
	ReasonNone              DenyReason = ""
	ReasonNotSEB            DenyReason = "not_seb"
	ReasonInvalidConfigKey  DenyReason = "invalid_config_key"
	ReasonInvalidBrowserKey DenyReason = "invalid_browser_key"
)

// AccessState is the last state the access checks reached for a request.
type AccessState string

const (
	StateNotRequired      AccessState = "not_required"
	StateBypassed         AccessState = "bypassed"
	StateSessionValidated AccessState = "session_validated"
	StateGranted          AccessState = "granted"
	StateDenied           AccessState = "denied"
)

// Link is a remediation link shown next to a denial or description.
type Link struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Decision is the outcome of evaluating the SEB rule for one request.
type Decision struct {
	Allowed bool        `json:"allowed"`
	State   AccessState `json:"state"`
	Reason  DenyReason  `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
	Links   []Link      `json:"links,omitempty"`
	// RedirectURL asks the browser to reload its configuration from a
	// launch link. Only set on a config key mismatch.
	RedirectURL string `json:"redirect_url,omitempty"`
	// SecureLayout tells the page to hide navigation while the rule applies.
	SecureLayout bool `json:"secure_layout"`
	// HideBlocks tells the quiz view page to suppress side blocks.
	HideBlocks bool `json:"hide_blocks"`
}

// DescriptionQuery selects the page a quiz notice is built for. URL defaults
// to the quiz view page.
type DescriptionQuery struct {
	URL string `form:"url" binding:"omitempty,url,max=2048"`
}

// ValidateKeysRequest mirrors the in-browser SEB JavaScript API check.
type ValidateKeysRequest struct {
	CMID           int64  `json:"cmid" binding:"required,min=1"`
	URL            string `json:"url" binding:"required,url"`
	ConfigKey      string `json:"configkey" binding:"omitempty,hexadecimal,len=64"`
	BrowserExamKey string `json:"browserexamkey" binding:"omitempty,hexadecimal,len=64"`
}

// ValidateKeysResponse reports which hashes matched.
type ValidateKeysResponse struct {
	ConfigKey      bool `json:"configkey"`
	BrowserExamKey bool `json:"browserexamkey"`
}

// AccessEvent is an audited access-prevented event. The header flags record
// only whether a key header was sent, never its value.
type AccessEvent struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                int        `json:"user_id"`
	QuizID                int64      `json:"quiz_id"`
	CMID                  int64      `json:"cmid"`
	Reason                DenyReason `json:"reason"`
	ConfigKeyHashPresent  bool       `json:"config_key_hash_present"`
	BrowserKeyHashPresent bool       `json:"browser_key_hash_present"`
	IP                    string     `json:"ip"`
	CreatedAt             time.Time  `json:"created_at"`
}
