package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"lendgate/pkg/requestcontext"
)

// Caller records the subject of a bearer JWT for log attribution. The
// signature is not checked; the credential is forwarded untouched to the
// banks and the processor, which authorize it. Opaque tokens are ignored.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if subject := SubjectFromAuthorization(r.Header.Get("Authorization")); subject != "" {
			r = r.WithContext(requestcontext.WithCaller(r.Context(), subject))
		}
		next.ServeHTTP(w, r)
	})
}

var unverifiedParser = jwt.NewParser()

// SubjectFromAuthorization returns the sub claim of a "Bearer <jwt>" header
// value, or "" when there is none.
func SubjectFromAuthorization(header string) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return ""
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return ""
	}
	return claims.Subject
}
