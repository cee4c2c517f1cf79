// Package wallet implements the privileged node that sits between
// application code and storage (§4.9): credential lifecycle, session
// authorization, :key placeholder resolution, signed writes, optional
// envelope encryption, and batched proxy reads.
package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bandeira-tech/b3nd-sdk/pkg/canonicalize"
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/record"
)

// Wallet wraps a storage backend with the auth/signing/encryption layer
// described in §4.9. It is not itself a node.Node: its surface is
// request/response methods, not the uniform op set, since its
// responsibilities (signup, login, proxy read/write) don't map 1:1 onto
// receive/read/delete.
type Wallet struct {
	Backend  node.Node
	Keys     KeySet
	Identity IdentityVerifier
	// SessionTokenTTL bounds issued JWTs; default 24h.
	SessionTokenTTL time.Duration
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithIdentityVerifier wires third-party identity binding.
func WithIdentityVerifier(v IdentityVerifier) Option {
	return func(w *Wallet) { w.Identity = v }
}

// WithSessionTokenTTL overrides the default 24h JWT lifetime.
func WithSessionTokenTTL(d time.Duration) Option {
	return func(w *Wallet) { w.SessionTokenTTL = d }
}

// WithKeys overrides the wallet's session-signing keyset, e.g. with one
// loaded from disk via LoadOrCreateFileKeySet so signing keys survive a
// restart instead of being regenerated, which would invalidate every
// session token issued before it.
func WithKeys(k KeySet) Option {
	return func(w *Wallet) { w.Keys = k }
}

// New returns a Wallet backed by n, generating its own signing keyset.
func New(n node.Node, opts ...Option) (*Wallet, error) {
	keys, err := NewInMemoryKeySet()
	if err != nil {
		return nil, err
	}
	w := &Wallet{Backend: n, Keys: keys, SessionTokenTTL: 24 * time.Hour}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

type accountRecord struct {
	AppKey        string `json:"appKey"`
	Username      string `json:"username"`
	PasswordHash  string `json:"passwordHash,omitempty"`
	IdentityEmail string `json:"identityEmail,omitempty"`
	PrincipalPub  string `json:"principalPub"`
	PrincipalPriv string `json:"principalPriv"`
	EncPub        string `json:"encPub"`
	EncPriv       string `json:"encPriv"`
}

func accountURI(appKey, username string) string {
	return "wallet-accounts://" + appKey + "/" + username
}

func sessionPreauthURI(appKey, sessionPub string) string {
	return "mutable://accounts/" + appKey + "/sessions/" + sessionPub
}

func resetTokenURI(appKey, username string) string {
	return "wallet-resets://" + appKey + "/" + username
}

type resetTokenRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// sessionSigningPayload is what the session keypair must sign over for a
// signup or login request to be accepted: appKey, the named operation,
// and username, canonically serialized.
func sessionSigningPayload(appKey, op, username string) ([]byte, error) {
	return canonicalize.Bytes(map[string]interface{}{"appKey": appKey, "op": op, "username": username})
}

func (w *Wallet) verifySessionAuthorized(ctx context.Context, appKey, op, username, sessionPub, sessionSignature string) *node.Error {
	pubBytes, err := hexDecode(sessionPub)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return node.NewError(node.KindAuth, "invalid session public key", err)
	}
	sigBytes, err := hexDecode(sessionSignature)
	if err != nil {
		return node.NewError(node.KindAuth, "invalid session signature encoding", err)
	}
	payload, err := sessionSigningPayload(appKey, op, username)
	if err != nil {
		return node.NewError(node.KindAuth, "failed to build signing payload", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), payload, sigBytes) {
		return node.NewError(node.KindAuth, "session signature does not verify", nil)
	}

	res := w.Backend.Read(ctx, sessionPreauthURI(appKey, sessionPub))
	if !res.OK || !isApproved(res.Record.Data) {
		return node.NewError(node.KindAuth, "session key is not pre-approved", nil)
	}
	return nil
}

// isApproved accepts either the bare 1 written directly via the node
// surface or a JSON-decoded float64/bool after a round trip through a
// serializing backend.
func isApproved(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x == 1
	case int:
		return x == 1
	default:
		return false
	}
}

// Signup issues a new principal identity under (appKey, username) (§4.9
// Credential lifecycle).
func (w *Wallet) Signup(ctx context.Context, appKey string, req SignupRequest) (*SignupResult, *node.Error) {
	if err := w.verifySessionAuthorized(ctx, appKey, "signup", req.Username, req.SessionPub, req.SessionSignature); err != nil {
		return nil, err
	}

	if existing := w.Backend.Read(ctx, accountURI(appKey, req.Username)); existing.OK {
		return nil, node.NewError(node.KindImmutableExists, "account already exists", nil)
	}

	acct := accountRecord{AppKey: appKey, Username: req.Username}
	switch req.Type {
	case CredentialPassword:
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, node.NewError(node.KindBackend, "failed to hash password", err)
		}
		acct.PasswordHash = string(hash)
	case CredentialIdentity:
		if w.Identity == nil {
			return nil, node.NewError(node.KindAuth, "identity signup is not configured", nil)
		}
		profile, err := w.Identity(ctx, req.IdentityToken)
		if err != nil {
			return nil, node.NewError(node.KindAuth, "identity verification failed", err)
		}
		acct.IdentityEmail = profile.Email
	default:
		return nil, node.NewError(node.KindValidation, fmt.Sprintf("unknown credential type %q", req.Type), nil)
	}

	principalPub, principalPriv, err := generateSigningKeypair()
	if err != nil {
		return nil, node.NewError(node.KindBackend, "failed to generate signing keypair", err)
	}
	encPub, encPriv, err := generateEncryptionKeypair()
	if err != nil {
		return nil, node.NewError(node.KindBackend, "failed to generate encryption keypair", err)
	}
	acct.PrincipalPub = hexEncode(principalPub)
	acct.PrincipalPriv = hexEncode(principalPriv)
	acct.EncPub = hexEncode(encPub[:])
	acct.EncPriv = hexEncode(encPriv[:])

	res := w.Backend.Receive(ctx, node.ReceiveInput{URI: accountURI(appKey, req.Username), Data: acct})
	if !res.Accepted {
		return nil, res.Error
	}
	return &SignupResult{PrincipalPub: acct.PrincipalPub, EncPub: acct.EncPub}, nil
}

// Login authenticates (appKey, username) and issues a session JWT.
func (w *Wallet) Login(ctx context.Context, appKey string, req LoginRequest) (*LoginResult, *node.Error) {
	if err := w.verifySessionAuthorized(ctx, appKey, "login", req.Username, req.SessionPub, req.SessionSignature); err != nil {
		return nil, err
	}

	acct, err := w.loadAccount(ctx, appKey, req.Username)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case CredentialPassword:
		if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
			return nil, node.NewError(node.KindAuth, "invalid username or password", nil)
		}
	case CredentialIdentity:
		if w.Identity == nil {
			return nil, node.NewError(node.KindAuth, "identity login is not configured", nil)
		}
		profile, verr := w.Identity(ctx, req.IdentityToken)
		if verr != nil || profile.Email == "" || profile.Email != acct.IdentityEmail {
			return nil, node.NewError(node.KindAuth, "identity verification failed", verr)
		}
	default:
		return nil, node.NewError(node.KindValidation, fmt.Sprintf("unknown credential type %q", req.Type), nil)
	}

	token, terr := w.Keys.Sign(SessionClaims{
		AppKey:       appKey,
		Username:     req.Username,
		PrincipalPub: acct.PrincipalPub,
	})
	if terr != nil {
		return nil, node.NewError(node.KindBackend, "failed to sign session token", terr)
	}
	return &LoginResult{Token: token, PrincipalPub: acct.PrincipalPub, EncPub: acct.EncPub}, nil
}

func (w *Wallet) loadAccount(ctx context.Context, appKey, username string) (*accountRecord, *node.Error) {
	res := w.Backend.Read(ctx, accountURI(appKey, username))
	if !res.OK {
		return nil, node.NewError(node.KindAuth, "unknown account", nil)
	}
	acct, ok := decodeAccount(res.Record.Data)
	if !ok {
		return nil, node.NewError(node.KindBackend, "corrupt account record", nil)
	}
	return acct, nil
}

// decodeAccount recovers an accountRecord from whatever shape the
// backend returned it as (a map[string]interface{} after a JSON round
// trip through most backends, or the struct itself for pkg/store/memory
// which never serializes).
func decodeAccount(v interface{}) (*accountRecord, bool) {
	if acct, ok := v.(accountRecord); ok {
		return &acct, true
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	acct := &accountRecord{
		AppKey:        stringField(m, "appKey"),
		Username:      stringField(m, "username"),
		PasswordHash:  stringField(m, "passwordHash"),
		IdentityEmail: stringField(m, "identityEmail"),
		PrincipalPub:  stringField(m, "principalPub"),
		PrincipalPriv: stringField(m, "principalPriv"),
		EncPub:        stringField(m, "encPub"),
		EncPriv:       stringField(m, "encPriv"),
	}
	return acct, true
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// ChangePassword updates the password for an already-authenticated
// principal.
func (w *Wallet) ChangePassword(ctx context.Context, claims *SessionClaims, oldPassword, newPassword string) *node.Error {
	acct, err := w.loadAccount(ctx, claims.AppKey, claims.Username)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(oldPassword)) != nil {
		return node.NewError(node.KindAuth, "incorrect current password", nil)
	}
	hash, herr := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if herr != nil {
		return node.NewError(node.KindBackend, "failed to hash password", herr)
	}
	acct.PasswordHash = string(hash)
	res := w.Backend.Receive(ctx, node.ReceiveInput{URI: accountURI(claims.AppKey, claims.Username), Data: *acct})
	if !res.Accepted {
		return res.Error
	}
	return nil
}

// RequestPasswordReset issues a one-time reset token. Deployments that
// wire up email delivery do so outside the wallet; this call returns
// the token directly since the wallet has no mail transport of its own.
func (w *Wallet) RequestPasswordReset(ctx context.Context, appKey, username string) (string, *node.Error) {
	if _, err := w.loadAccount(ctx, appKey, username); err != nil {
		return "", err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", node.NewError(node.KindBackend, "failed to generate reset token", err)
	}
	token := hex.EncodeToString(raw)
	rec := resetTokenRecord{Token: token, ExpiresAt: time.Now().Add(1 * time.Hour)}
	res := w.Backend.Receive(ctx, node.ReceiveInput{URI: resetTokenURI(appKey, username), Data: rec})
	if !res.Accepted {
		return "", res.Error
	}
	return token, nil
}

// ResetPassword consumes a reset token issued by RequestPasswordReset.
func (w *Wallet) ResetPassword(ctx context.Context, appKey, username, token, newPassword string) *node.Error {
	stored := w.Backend.Read(ctx, resetTokenURI(appKey, username))
	if !stored.OK {
		return node.NewError(node.KindAuth, "no reset token on file", nil)
	}
	rec, ok := decodeResetToken(stored.Record.Data)
	if !ok || rec.Token != token {
		return node.NewError(node.KindAuth, "invalid reset token", nil)
	}
	if time.Now().After(rec.ExpiresAt) {
		return node.NewError(node.KindAuth, "reset token expired", nil)
	}

	acct, err := w.loadAccount(ctx, appKey, username)
	if err != nil {
		return err
	}
	hash, herr := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if herr != nil {
		return node.NewError(node.KindBackend, "failed to hash password", herr)
	}
	acct.PasswordHash = string(hash)
	res := w.Backend.Receive(ctx, node.ReceiveInput{URI: accountURI(appKey, username), Data: *acct})
	if !res.Accepted {
		return res.Error
	}
	_ = w.Backend.Delete(ctx, resetTokenURI(appKey, username))
	return nil
}

func decodeResetToken(v interface{}) (*resetTokenRecord, bool) {
	if rec, ok := v.(resetTokenRecord); ok {
		return &rec, true
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	token := stringField(m, "token")
	expiresRaw, _ := m["expiresAt"].(string)
	expiresAt, perr := time.Parse(time.RFC3339, expiresRaw)
	if perr != nil {
		return nil, false
	}
	return &resetTokenRecord{Token: token, ExpiresAt: expiresAt}, true
}

// PublicKeys returns the principal and encryption public keys on file
// for an authenticated app, keyed by username.
func (w *Wallet) PublicKeys(ctx context.Context, appKey, username string) (principalPub, encPub string, nerr *node.Error) {
	acct, err := w.loadAccount(ctx, appKey, username)
	if err != nil {
		return "", "", err
	}
	return acct.PrincipalPub, acct.EncPub, nil
}

// ServerKeys returns the wallet's own signing public key, used by
// clients to verify session JWTs out of band if desired.
func (w *Wallet) ServerKeys() map[string]string {
	return map[string]string{"signingPub": w.Keys.PublicKeyHex()}
}

// resolveKeyPlaceholder replaces the literal ":key" path segment with
// the authenticated principal's public key hex (§4.9 :key resolution).
func resolveKeyPlaceholder(uri, principalPubHex string) string {
	return strings.ReplaceAll(uri, ":key", principalPubHex)
}

// ProxyWrite signs (and optionally encrypts) a value on behalf of the
// authenticated principal, then forwards it to the backend.
func (w *Wallet) ProxyWrite(ctx context.Context, claims *SessionClaims, uri string, data interface{}, encrypt bool) (*ProxyWriteResult, *node.Error) {
	acct, err := w.loadAccount(ctx, claims.AppKey, claims.Username)
	if err != nil {
		return nil, err
	}
	resolvedURI := resolveKeyPlaceholder(uri, acct.PrincipalPub)

	priv, perr := hexDecode(acct.PrincipalPriv)
	if perr != nil {
		return nil, node.NewError(node.KindBackend, "corrupt principal key", perr)
	}

	var payload interface{} = data
	if encrypt {
		var encPub, encPriv [32]byte
		if decoded, derr := hexDecode(acct.EncPub); derr == nil {
			copy(encPub[:], decoded)
		}
		if decoded, derr := hexDecode(acct.EncPriv); derr == nil {
			copy(encPriv[:], decoded)
		}
		sealed, serr := encryptForRecipient(encPriv, encPub, data)
		if serr != nil {
			return nil, node.NewError(node.KindBackend, "failed to encrypt payload", serr)
		}
		payload = sealed
	}

	envelope, eerr := signEnvelope(ed25519.PrivateKey(priv), resolvedURI, payload)
	if eerr != nil {
		return nil, node.NewError(node.KindBackend, "failed to sign payload", eerr)
	}

	res := w.Backend.Receive(ctx, node.ReceiveInput{URI: resolvedURI, Data: envelope})
	if !res.Accepted {
		return nil, res.Error
	}

	read := w.Backend.Read(ctx, resolvedURI)
	rec := record.Record{Data: envelope}
	if read.OK {
		rec = read.Record
	}
	return &ProxyWriteResult{Success: true, URI: uri, ResolvedURI: resolvedURI, Record: rec}, nil
}

// ProxyRead resolves :key, reads the backend, and transparently decrypts
// a wallet-encrypted payload when the caller holds the matching key.
func (w *Wallet) ProxyRead(ctx context.Context, claims *SessionClaims, uri string) *ProxyReadResult {
	acct, err := w.loadAccount(ctx, claims.AppKey, claims.Username)
	if err != nil {
		return &ProxyReadResult{Success: false, URI: uri, Error: err.Error()}
	}
	resolvedURI := resolveKeyPlaceholder(uri, acct.PrincipalPub)

	res := w.Backend.Read(ctx, resolvedURI)
	if !res.OK {
		return &ProxyReadResult{Success: false, URI: uri, Error: res.Error.Error()}
	}

	out := &ProxyReadResult{Success: true, URI: uri, Record: res.Record}
	envelopeMap, ok := res.Record.Data.(map[string]interface{})
	if !ok {
		return out
	}
	sealed, isEncrypted := parseEncryptedPayload(envelopeMap["payload"])
	if !isEncrypted {
		return out
	}

	var encPub, encPriv [32]byte
	if decoded, derr := hexDecode(acct.EncPub); derr == nil {
		copy(encPub[:], decoded)
	}
	if decoded, derr := hexDecode(acct.EncPriv); derr == nil {
		copy(encPriv[:], decoded)
	}
	plain, derr := decryptFromSender(encPriv, encPub, sealed)
	if derr != nil {
		out.Error = node.NewError(node.KindDecrypt, derr.Error(), derr).Error()
		return out
	}
	out.Decrypted = plain
	return out
}

// ProxyReadMulti reads up to node.MaxBatchSize URIs, decrypting each
// independently (§4.9 Batched proxy read).
func (w *Wallet) ProxyReadMulti(ctx context.Context, claims *SessionClaims, uris []string) (*ProxyReadMultiResult, *node.Error) {
	if cerr := node.CheckBatchSize(uris); cerr != nil {
		return nil, cerr
	}
	results := make([]ProxyReadResult, 0, len(uris))
	summary := BatchSummary{Total: len(uris)}
	for _, uri := range uris {
		r := w.ProxyRead(ctx, claims, uri)
		if r.Success && r.Error == "" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		results = append(results, *r)
	}
	return &ProxyReadMultiResult{Results: results, Summary: summary}, nil
}
