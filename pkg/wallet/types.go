package wallet

import "github.com/bandeira-tech/b3nd-sdk/pkg/record"

// CredentialType discriminates how a signup/login proves identity.
type CredentialType string

const (
	CredentialPassword CredentialType = "password"
	CredentialIdentity CredentialType = "identity"
)

// SignupRequest carries a pre-approved session keypair's proof plus the
// chosen credential (§4.9 Credential lifecycle, Third-party identity).
type SignupRequest struct {
	SessionPub       string
	SessionSignature string
	Type             CredentialType
	Username         string
	Password         string // when Type == CredentialPassword
	IdentityToken    string // when Type == CredentialIdentity
}

// SignupResult is returned on successful signup.
type SignupResult struct {
	PrincipalPub string `json:"principalPub"`
	EncPub       string `json:"encPub"`
}

// LoginRequest mirrors SignupRequest's session-proof shape.
type LoginRequest struct {
	SessionPub       string
	SessionSignature string
	Type             CredentialType
	Username         string
	Password         string
	IdentityToken    string
}

// LoginResult carries the issued session JWT.
type LoginResult struct {
	Token        string `json:"token"`
	PrincipalPub string `json:"principalPub"`
	EncPub       string `json:"encPub"`
}

// ProxyWriteResult mirrors the wallet HTTP surface's /proxy/write body.
type ProxyWriteResult struct {
	Success     bool          `json:"success"`
	URI         string        `json:"uri"`
	ResolvedURI string        `json:"resolvedUri"`
	Record      record.Record `json:"record"`
	Error       string        `json:"error,omitempty"`
}

// ProxyReadResult mirrors /proxy/read.
type ProxyReadResult struct {
	Success   bool          `json:"success"`
	URI       string        `json:"uri"`
	Record    record.Record `json:"record,omitempty"`
	Decrypted interface{}   `json:"decrypted,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ProxyReadMultiResult mirrors /proxy/read-multi.
type ProxyReadMultiResult struct {
	Results []ProxyReadResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// BatchSummary totals a proxy read-multi's per-URI outcomes.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
