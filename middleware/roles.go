package middleware

import (
	"net/http"

	goAttend "github.com/MrEthical07/goAttend"
)

// RequireRole rejects requests whose principal holds none of roles with 403. It
// must run after [Authenticate]; a request without a principal gets 401.
func RequireRole(roles ...goAttend.Role) func(http.Handler) http.Handler {
	allowed := make(map[goAttend.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := goAttend.PrincipalFromContext(r.Context())
			if !ok {
				reject(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				reject(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireTeacher() func(http.Handler) http.Handler {
	return RequireRole(goAttend.RoleTeacher)
}

func RequireStudent() func(http.Handler) http.Handler {
	return RequireRole(goAttend.RoleStudent)
}
