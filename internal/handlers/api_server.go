// internal/handlers/api_server.go
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
)

// Routes mounts the HTTP and websocket endpoints of the server.
func (s *GameServer) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", s.CreateUserHandler)
		r.Post("/login", s.LoginHandler)
		r.Post("/guest", s.GuestHandler)
		r.With(s.requireIdentity).Post("/claim", s.ClaimGuestHandler)
		r.With(s.requireIdentity).Get("/me", s.MeHandler)
	})

	r.Route("/game", func(r chi.Router) {
		// sockets authenticate after the upgrade so browsers can see the close code
		r.Get("/ws/{id}", s.GameWSHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.ensureIdentity)
			r.Post("/create", s.CreateGameHandler)
			r.Get("/list", s.ListGamesHandler)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetGameHandler)
				r.Post("/play", s.PlayHandler)
				r.Post("/draw", s.DrawHandler)
				r.Post("/auto", s.AutoMoveHandler)
				r.Delete("/", s.DeleteGameHandler)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// authenticate resolves the request's token, if it carries a valid one.
func (s *GameServer) authenticate(r *http.Request) (identity, bool) {
	token := requestToken(r)
	if token == "" {
		return identity{}, false
	}
	userID, claims, err := s.signer.Authenticate(token)
	if err != nil {
		s.logger.WithError(err).Debug("rejected auth token")
		return identity{}, false
	}
	return identity{UserID: userID, Guest: claims.Guest}, true
}

// requireIdentity answers 401 for requests without a valid token.
func (s *GameServer) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// ensureIdentity signs in a fresh guest when the request has no valid token.
func (s *GameServer) ensureIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.authenticate(r)
		if !ok {
			guest, token, err := s.createGuest(r, w)
			if err != nil {
				s.logger.WithError(err).Error("failed to create guest user")
				writeError(w, http.StatusInternalServerError, "failed to create guest user")
				return
			}
			w.Header().Set(authTokenHeader, token)
			id = identity{UserID: guest.ID, Guest: true}
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// authTokenHeader carries the token of an automatically created guest to non-browser clients.
const authTokenHeader = "X-Auth-Token"

// setAuthCookie hands the token to browsers; API clients read it from the response body.
func (s *GameServer) setAuthCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
	if s.tokenTTL > 0 {
		cookie.MaxAge = int(s.tokenTTL / time.Second)
	}
	http.SetCookie(w, cookie)
}

func gameIDParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// mustIdentity is only used behind the identity middlewares.
func mustIdentity(r *http.Request) identity {
	id, _ := identityFrom(r.Context())
	return id
}

// statusFor maps store errors shared by several handlers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrGameNotFound), errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
