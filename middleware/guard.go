package middleware

import (
	"net/http"
	"strings"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/jwt"
)

// IdentityParser verifies a bearer identity token. [jwt.Manager] implements it.
type IdentityParser interface {
	ParseIdentity(token string, now time.Time) (*jwt.IdentityClaims, error)
}

// Authenticate verifies the bearer token of every request and attaches the
// resulting [goAttend.Principal] to the request context. Requests without a valid
// token, or whose token carries an unknown role, get 401.
func Authenticate(parser IdentityParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				reject(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := parser.ParseIdentity(token, time.Now())
			if err != nil {
				reject(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			p := goAttend.Principal{ID: claims.Subject, Role: goAttend.Role(claims.Role)}
			if p.ID == "" || !p.Role.Valid() {
				reject(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := goAttend.WithPrincipal(r.Context(), p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
