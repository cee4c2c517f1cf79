package wallet

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/store/memory"
)

type testSession struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newApprovedSession(t *testing.T, ctx context.Context, backend node.Node, appKey string) testSession {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	res := backend.Receive(ctx, node.ReceiveInput{URI: sessionPreauthURI(appKey, hexEncode(pub)), Data: 1})
	require.True(t, res.Accepted)
	return testSession{pub: pub, priv: priv}
}

func (s testSession) sign(t *testing.T, appKey, op, username string) (sessionPub, sessionSig string) {
	t.Helper()
	payload, err := sessionSigningPayload(appKey, op, username)
	require.NoError(t, err)
	sig := ed25519.Sign(s.priv, payload)
	return hexEncode(s.pub), hexEncode(sig)
}

func TestSignup_PasswordCredential(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	session := newApprovedSession(t, ctx, backend, "app1")
	sessionPub, sessionSig := session.sign(t, "app1", "signup", "alice")

	res, nerr := w.Signup(ctx, "app1", SignupRequest{
		SessionPub: sessionPub, SessionSignature: sessionSig,
		Type: CredentialPassword, Username: "alice", Password: "hunter2",
	})
	require.Nil(t, nerr)
	require.NotEmpty(t, res.PrincipalPub)
	require.NotEmpty(t, res.EncPub)
}

func TestSignup_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	session := newApprovedSession(t, ctx, backend, "app1")
	sessionPub, sessionSig := session.sign(t, "app1", "signup", "alice")
	_, nerr := w.Signup(ctx, "app1", SignupRequest{
		SessionPub: sessionPub, SessionSignature: sessionSig,
		Type: CredentialPassword, Username: "alice", Password: "hunter2",
	})
	require.Nil(t, nerr)

	session2 := newApprovedSession(t, ctx, backend, "app1")
	sessionPub2, sessionSig2 := session2.sign(t, "app1", "signup", "alice")
	_, nerr = w.Signup(ctx, "app1", SignupRequest{
		SessionPub: sessionPub2, SessionSignature: sessionSig2,
		Type: CredentialPassword, Username: "alice", Password: "other",
	})
	require.NotNil(t, nerr)
	require.Equal(t, node.KindImmutableExists, nerr.Kind)
}

func TestSignup_UnapprovedSessionRejected(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	payload, err := sessionSigningPayload("app1", "signup", "alice")
	require.NoError(t, err)
	sig := ed25519.Sign(priv, payload)

	_, nerr := w.Signup(ctx, "app1", SignupRequest{
		SessionPub: hexEncode(pub), SessionSignature: hexEncode(sig),
		Type: CredentialPassword, Username: "alice", Password: "hunter2",
	})
	require.NotNil(t, nerr)
	require.Equal(t, node.KindAuth, nerr.Kind)
}

func signupAndLogin(t *testing.T, ctx context.Context, w *Wallet, backend node.Node, appKey, username, password string) *LoginResult {
	t.Helper()
	session := newApprovedSession(t, ctx, backend, appKey)
	sessionPub, sessionSig := session.sign(t, appKey, "signup", username)
	_, nerr := w.Signup(ctx, appKey, SignupRequest{
		SessionPub: sessionPub, SessionSignature: sessionSig,
		Type: CredentialPassword, Username: username, Password: password,
	})
	require.Nil(t, nerr)

	loginSession := newApprovedSession(t, ctx, backend, appKey)
	loginPub, loginSig := loginSession.sign(t, appKey, "login", username)
	login, nerr := w.Login(ctx, appKey, LoginRequest{
		SessionPub: loginPub, SessionSignature: loginSig,
		Type: CredentialPassword, Username: username, Password: password,
	})
	require.Nil(t, nerr)
	return login
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	session := newApprovedSession(t, ctx, backend, "app1")
	sessionPub, sessionSig := session.sign(t, "app1", "signup", "alice")
	_, nerr := w.Signup(ctx, "app1", SignupRequest{
		SessionPub: sessionPub, SessionSignature: sessionSig,
		Type: CredentialPassword, Username: "alice", Password: "hunter2",
	})
	require.Nil(t, nerr)

	loginSession := newApprovedSession(t, ctx, backend, "app1")
	loginPub, loginSig := loginSession.sign(t, "app1", "login", "alice")
	_, nerr = w.Login(ctx, "app1", LoginRequest{
		SessionPub: loginPub, SessionSignature: loginSig,
		Type: CredentialPassword, Username: "alice", Password: "wrong",
	})
	require.NotNil(t, nerr)
	require.Equal(t, node.KindAuth, nerr.Kind)
}

func TestProxyWrite_SignsAndResolvesKeyPlaceholder(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	login := signupAndLogin(t, ctx, w, backend, "app1", "alice", "hunter2")
	claims := &SessionClaims{AppKey: "app1", Username: "alice", PrincipalPub: login.PrincipalPub}

	res, nerr := w.ProxyWrite(ctx, claims, "docs://app1/:key/note", map[string]interface{}{"text": "hi"}, false)
	require.Nil(t, nerr)
	require.True(t, res.Success)
	require.Contains(t, res.ResolvedURI, login.PrincipalPub)
	require.NotContains(t, res.ResolvedURI, ":key")
}

func TestProxyWriteThenRead_Encrypted(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)

	login := signupAndLogin(t, ctx, w, backend, "app1", "alice", "hunter2")
	claims := &SessionClaims{AppKey: "app1", Username: "alice", PrincipalPub: login.PrincipalPub}

	write, nerr := w.ProxyWrite(ctx, claims, "secrets://app1/:key/seed", map[string]interface{}{"phrase": "correct horse"}, true)
	require.Nil(t, nerr)
	require.True(t, write.Success)

	read := w.ProxyRead(ctx, claims, "secrets://app1/:key/seed")
	require.True(t, read.Success)
	require.NotNil(t, read.Decrypted)
	m, ok := read.Decrypted.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "correct horse", m["phrase"])
}

func TestProxyReadMulti_RespectsBatchLimit(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)
	login := signupAndLogin(t, ctx, w, backend, "app1", "alice", "hunter2")
	claims := &SessionClaims{AppKey: "app1", Username: "alice", PrincipalPub: login.PrincipalPub}

	uris := make([]string, node.MaxBatchSize+1)
	for i := range uris {
		uris[i] = "docs://app1/:key/note"
	}
	_, nerr := w.ProxyReadMulti(ctx, claims, uris)
	require.NotNil(t, nerr)
	require.Equal(t, node.KindBatchTooLarge, nerr.Kind)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)
	login := signupAndLogin(t, ctx, w, backend, "app1", "alice", "hunter2")
	claims := &SessionClaims{AppKey: "app1", Username: "alice", PrincipalPub: login.PrincipalPub}

	nerr := w.ChangePassword(ctx, claims, "hunter2", "newpass")
	require.Nil(t, nerr)

	loginSession := newApprovedSession(t, ctx, backend, "app1")
	loginPub, loginSig := loginSession.sign(t, "app1", "login", "alice")
	_, nerr = w.Login(ctx, "app1", LoginRequest{
		SessionPub: loginPub, SessionSignature: loginSig,
		Type: CredentialPassword, Username: "alice", Password: "newpass",
	})
	require.Nil(t, nerr)
}

func TestRequestAndResetPassword(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend)
	require.NoError(t, err)
	signupAndLogin(t, ctx, w, backend, "app1", "alice", "hunter2")

	token, nerr := w.RequestPasswordReset(ctx, "app1", "alice")
	require.Nil(t, nerr)
	require.NotEmpty(t, token)

	nerr = w.ResetPassword(ctx, "app1", "alice", token, "brandnew")
	require.Nil(t, nerr)

	loginSession := newApprovedSession(t, ctx, backend, "app1")
	loginPub, loginSig := loginSession.sign(t, "app1", "login", "alice")
	_, nerr = w.Login(ctx, "app1", LoginRequest{
		SessionPub: loginPub, SessionSignature: loginSig,
		Type: CredentialPassword, Username: "alice", Password: "brandnew",
	})
	require.Nil(t, nerr)
}

func TestIdentitySignupAndLogin(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	w, err := New(backend, WithIdentityVerifier(func(ctx context.Context, idToken string) (IdentityProfile, error) {
		return IdentityProfile{Email: "alice@example.com"}, nil
	}))
	require.NoError(t, err)

	session := newApprovedSession(t, ctx, backend, "app1")
	sessionPub, sessionSig := session.sign(t, "app1", "signup", "alice")
	_, nerr := w.Signup(ctx, "app1", SignupRequest{
		SessionPub: sessionPub, SessionSignature: sessionSig,
		Type: CredentialIdentity, Username: "alice", IdentityToken: "token-1",
	})
	require.Nil(t, nerr)

	loginSession := newApprovedSession(t, ctx, backend, "app1")
	loginPub, loginSig := loginSession.sign(t, "app1", "login", "alice")
	login, nerr := w.Login(ctx, "app1", LoginRequest{
		SessionPub: loginPub, SessionSignature: loginSig,
		Type: CredentialIdentity, Username: "alice", IdentityToken: "token-1",
	})
	require.Nil(t, nerr)
	require.NotEmpty(t, login.Token)
}
