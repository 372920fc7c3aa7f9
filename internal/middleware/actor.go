package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

// Headers written by the upstream access gate. The API trusts them and never
// authenticates anybody itself.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

type contextKey int

const (
	actorKey contextKey = iota
	actorSlotKey
)

// actorSlot lets outer middleware observe the actor resolved further in.
type actorSlot struct {
	actor domain.Actor
	set   bool
}

func withActorSlot(ctx context.Context, s *actorSlot) context.Context {
	return context.WithValue(ctx, actorSlotKey, s)
}

// WithActor stores a on ctx.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	if s, ok := ctx.Value(actorSlotKey).(*actorSlot); ok {
		s.actor, s.set = a, true
	}
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the actor resolved by RequireActor.
func ActorFrom(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey).(domain.Actor)
	return a, ok
}

// ParseActor reads the identity headers. Roles are a comma separated list;
// blanks are dropped.
func ParseActor(h http.Header) (domain.Actor, bool) {
	raw := strings.TrimSpace(h.Get(HeaderUserID))
	if raw == "" {
		return domain.Actor{}, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return domain.Actor{}, false
	}

	a := domain.Actor{UserID: id}
	for _, role := range strings.Split(h.Get(HeaderUserRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			a.Roles = append(a.Roles, role)
		}
	}
	return a, true
}

// RequireActor rejects requests without a well-formed identity with 401 and
// otherwise makes the actor available through ActorFrom.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ParseActor(r.Header)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or malformed "+HeaderUserID+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
	})
}

// writeError writes the same error envelope the handlers use.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
