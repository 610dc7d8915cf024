package middleware

import (
	"context"
	"net/http"
	"strings"

	authenticationv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/freezegate/freezegate/internal/apierrors"
	"github.com/freezegate/freezegate/internal/apikeycache"
)

// PrincipalType enumerates how a caller was authenticated.
type PrincipalType string

const (
	PrincipalServiceAccount PrincipalType = "service_account"
	PrincipalAPIKey         PrincipalType = "api_key"
	PrincipalDevToken       PrincipalType = "dev_token"
)

// Principal identifies the authenticated caller.
type Principal struct {
	Type     PrincipalType
	Identity string
}

type principalContextKey struct{}

// PrincipalFromContext extracts the authenticated Principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// devTokenMinLength is the non-strict fallback's minimum opaque-token
// length.
const devTokenMinLength = 10

// TokenReviewer validates a bearer token against the cluster's token
// review endpoint. kubernetes.Interface satisfies this via its
// AuthenticationV1().TokenReviews() client.
type TokenReviewer interface {
	Create(ctx context.Context, tr *authenticationv1.TokenReview) (*authenticationv1.TokenReview, error)
}

type clientsetReviewer struct {
	clientset kubernetes.Interface
}

func (r clientsetReviewer) Create(ctx context.Context, tr *authenticationv1.TokenReview) (*authenticationv1.TokenReview, error) {
	return r.clientset.AuthenticationV1().TokenReviews().Create(ctx, tr, metav1.CreateOptions{})
}

// NewClientsetReviewer wraps a Kubernetes clientset as a TokenReviewer.
func NewClientsetReviewer(clientset kubernetes.Interface) TokenReviewer {
	return clientsetReviewer{clientset: clientset}
}

// AuthConfig configures the three-method authentication chain.
type AuthConfig struct {
	Reviewer                  TokenReviewer
	APIAllowedServiceAccounts func() map[string]struct{}
	StaticAPIKeys             func() map[string]string // key -> identity
	KeyCache                  *apikeycache.Cache        // ≤30s TTL cache for StaticAPIKeys lookups
	Strict                    bool                      // STRICT_AUTH
}

// Auth implements the three-method authentication chain, tried in order:
// (1) service-account token review, gated by an allowlist; (2) a static
// API key cached up to 30s; (3) when not strict, any opaque token of
// length ≥10 is accepted as api-user.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				apierrors.Write(w, apierrors.Unauthorized("missing or malformed Authorization header"))
				return
			}

			if cfg.Reviewer != nil {
				if principal, ok := tryTokenReview(r.Context(), cfg, token); ok {
					next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
					return
				}
			}

			if cfg.StaticAPIKeys != nil {
				if cfg.KeyCache != nil {
					if identity, hit := cfg.KeyCache.Get(r.Context(), token); hit {
						next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), Principal{Type: PrincipalAPIKey, Identity: identity})))
						return
					}
				}
				if identity, ok := cfg.StaticAPIKeys()[token]; ok {
					if cfg.KeyCache != nil {
						cfg.KeyCache.Put(r.Context(), token, identity)
					}
					next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), Principal{Type: PrincipalAPIKey, Identity: identity})))
					return
				}
			}

			if !cfg.Strict && len(token) >= devTokenMinLength {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), Principal{Type: PrincipalDevToken, Identity: "api-user"})))
				return
			}

			apierrors.Write(w, apierrors.Unauthorized("invalid credentials"))
		})
	}
}

func tryTokenReview(ctx context.Context, cfg AuthConfig, token string) (Principal, bool) {
	review := &authenticationv1.TokenReview{
		Spec: authenticationv1.TokenReviewSpec{Token: token},
	}
	result, err := cfg.Reviewer.Create(ctx, review)
	if err != nil || !result.Status.Authenticated {
		return Principal{}, false
	}

	username := result.Status.User.Username
	if cfg.APIAllowedServiceAccounts == nil {
		return Principal{}, false
	}
	allowed := cfg.APIAllowedServiceAccounts()
	if _, ok := allowed[username]; !ok {
		// deny-by-default when the allowlist is empty or doesn't list this SA
		return Principal{}, false
	}
	return Principal{Type: PrincipalServiceAccount, Identity: username}, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}
