package rbac

import "net/http"

var defaultChecker = NewChecker(nil)

// Require allows the request through when the caller's role holds the
// permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return defaultChecker.Has(role, perm) })
}

// RequireAny allows the request through when the role holds at least one of
// the permissions. Used where ownership widens access: students reading their
// own sessions next to teachers reading all of them. The handler behind the
// route still narrows to owned rows for callers without the view-all grant,
// since ownership is only known after the session is loaded.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return defaultChecker.Any(role, perms...) })
}

func guard(ok func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !ok(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
