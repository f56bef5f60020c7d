package middleware

import (
	"net/http"
	"strings"

	"github.com/phrazzld/taskflow-api/internal/api/shared"
)

// Identity extracts the owner ID from the Authorization bearer token and
// attaches it to the request context. Token verification is the API
// gateway's responsibility; by the time a request reaches this service the
// bearer value is the trusted owner identifier.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing or malformed Authorization header")
			return
		}
		ownerID := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if ownerID == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Empty bearer token")
			return
		}

		ctx := shared.SetOwnerID(r.Context(), ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
