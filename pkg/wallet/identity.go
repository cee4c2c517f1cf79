package wallet

import "context"

// IdentityProfile is what a third-party identity provider vouches for.
type IdentityProfile struct {
	Email string
}

// IdentityVerifier binds an opaque third-party idToken to a profile
// (§4.9 Third-party identity). The wallet treats the provider as opaque;
// deployments supply whatever OIDC/SAML verification they need.
type IdentityVerifier func(ctx context.Context, idToken string) (IdentityProfile, error)
