package wallet

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Server is the wallet's own HTTP surface (§6 Wallet HTTP surface),
// separate from pkg/httpserver's node surface: different routes,
// different envelopes, bearer-authenticated proxy endpoints.
type Server struct {
	Wallet *Wallet
	Prefix string
}

// NewServer returns a Server for w, registering routes under prefix
// (default "/api/v1") on mux.
func NewServer(w *Wallet, mux *http.ServeMux, prefix string) *Server {
	if prefix == "" {
		prefix = "/api/v1"
	}
	s := &Server{Wallet: w, Prefix: prefix}
	s.register(mux)
	return s
}

func (s *Server) register(mux *http.ServeMux) {
	mux.HandleFunc(s.Prefix+"/health", s.handleHealth)
	mux.HandleFunc(s.Prefix+"/server-keys", s.handleServerKeys)
	mux.HandleFunc(s.Prefix+"/auth/signup/", s.handleSignup)
	mux.HandleFunc(s.Prefix+"/auth/login/", s.handleLogin)
	mux.HandleFunc(s.Prefix+"/auth/credentials/change-password/", s.handleChangePassword)
	mux.HandleFunc(s.Prefix+"/auth/credentials/request-password-reset/", s.handleRequestPasswordReset)
	mux.HandleFunc(s.Prefix+"/auth/credentials/reset-password/", s.handleResetPassword)
	mux.HandleFunc(s.Prefix+"/auth/public-keys/", s.requireBearer(s.handlePublicKeys))
	mux.HandleFunc(s.Prefix+"/proxy/write", s.requireBearer(s.handleProxyWrite))
	mux.HandleFunc(s.Prefix+"/proxy/read", s.requireBearer(s.handleProxyRead))
	mux.HandleFunc(s.Prefix+"/proxy/read-multi", s.requireBearer(s.handleProxyReadMulti))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": "auth: " + message})
}

func statusForErr(err error) int {
	switch {
	case strings.HasPrefix(err.Error(), "auth:"):
		return http.StatusUnauthorized
	case strings.HasPrefix(err.Error(), "validation:"):
		return http.StatusBadRequest
	case strings.HasPrefix(err.Error(), "immutable-exists:"):
		return http.StatusConflict
	case strings.HasPrefix(err.Error(), "decrypt:"):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// requireBearer validates the Authorization header and passes the
// parsed SessionClaims to next as an argument, grounded on
// core/pkg/auth/middleware.go's Bearer-parsing shape.
func (s *Server) requireBearer(next func(http.ResponseWriter, *http.Request, *SessionClaims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeAuthError(w, http.StatusUnauthorized, "expected 'Bearer <token>'")
			return
		}
		claims := &SessionClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, s.Wallet.Keys.KeyFunc())
		if err != nil || !token.Valid {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired session token")
			return
		}
		next(w, r, claims)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

func (s *Server) handleServerKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Wallet.ServerKeys())
}

func appKeyFromPath(path, routePrefix string) string {
	return strings.Trim(strings.TrimPrefix(path, routePrefix), "/")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAuthError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/signup/")
	var body struct {
		SessionPub       string `json:"sessionPub"`
		SessionSignature string `json:"sessionSignature"`
		Type             string `json:"type"`
		Username         string `json:"username"`
		Password         string `json:"password"`
		IdentityToken    string `json:"identityToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, nerr := s.Wallet.Signup(r.Context(), appKey, SignupRequest{
		SessionPub: body.SessionPub, SessionSignature: body.SessionSignature,
		Type: CredentialType(body.Type), Username: body.Username,
		Password: body.Password, IdentityToken: body.IdentityToken,
	})
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAuthError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/login/")
	var body struct {
		SessionPub       string `json:"sessionPub"`
		SessionSignature string `json:"sessionSignature"`
		Type             string `json:"type"`
		Username         string `json:"username"`
		Password         string `json:"password"`
		IdentityToken    string `json:"identityToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, nerr := s.Wallet.Login(r.Context(), appKey, LoginRequest{
		SessionPub: body.SessionPub, SessionSignature: body.SessionSignature,
		Type: CredentialType(body.Type), Username: body.Username,
		Password: body.Password, IdentityToken: body.IdentityToken,
	})
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/credentials/change-password/")
	var body struct {
		Token       string `json:"token"`
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(body.Token, claims, s.Wallet.Keys.KeyFunc())
	if err != nil || !token.Valid || claims.AppKey != appKey {
		writeAuthError(w, http.StatusUnauthorized, "invalid session token")
		return
	}
	if nerr := s.Wallet.ChangePassword(r.Context(), claims, body.OldPassword, body.NewPassword); nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/credentials/request-password-reset/")
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, nerr := s.Wallet.RequestPasswordReset(r.Context(), appKey, body.Username)
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "token": token})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/credentials/reset-password/")
	var body struct {
		Username    string `json:"username"`
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if nerr := s.Wallet.ResetPassword(r.Context(), appKey, body.Username, body.Token, body.NewPassword); nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handlePublicKeys(w http.ResponseWriter, r *http.Request, claims *SessionClaims) {
	appKey := appKeyFromPath(r.URL.Path, s.Prefix+"/auth/public-keys/")
	username := r.URL.Query().Get("username")
	if username == "" {
		username = claims.Username
	}
	principalPub, encPub, nerr := s.Wallet.PublicKeys(r.Context(), appKey, username)
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"principalPub": principalPub, "encPub": encPub})
}

func (s *Server) handleProxyWrite(w http.ResponseWriter, r *http.Request, claims *SessionClaims) {
	if r.Method != http.MethodPost {
		writeAuthError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		URI     string      `json:"uri"`
		Data    interface{} `json:"data"`
		Encrypt bool        `json:"encrypt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, nerr := s.Wallet.ProxyWrite(r.Context(), claims, body.URI, body.Data, body.Encrypt)
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"success": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProxyRead(w http.ResponseWriter, r *http.Request, claims *SessionClaims) {
	uri := r.URL.Query().Get("uri")
	res := s.Wallet.ProxyRead(r.Context(), claims, uri)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProxyReadMulti(w http.ResponseWriter, r *http.Request, claims *SessionClaims) {
	if r.Method != http.MethodPost {
		writeAuthError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, nerr := s.Wallet.ProxyReadMulti(r.Context(), claims, body.URIs)
	if nerr != nil {
		writeJSON(w, statusForErr(nerr), map[string]interface{}{"ok": false, "error": nerr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
