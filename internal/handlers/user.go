package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/courts/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// createGuest stores an ephemeral user and signs them in. Without a user store the guest
// exists only in its token.
func (s *GameServer) createGuest(r *http.Request, w http.ResponseWriter) (*models.User, string, error) {
	guest := &models.User{Username: "Guest", IsEphemeral: true}
	if s.users != nil {
		if err := s.users.CreateUser(r.Context(), guest); err != nil {
			return nil, "", err
		}
	} else {
		guest.ID = uuid.New()
	}
	token, err := s.signer.CreateToken(guest.ID, true)
	if err != nil {
		return nil, "", err
	}
	s.setAuthCookie(w, token)
	return guest, token, nil
}

// GuestHandler signs in a new guest.
func (s *GameServer) GuestHandler(w http.ResponseWriter, r *http.Request) {
	guest, token, err := s.createGuest(r, w)
	if err != nil {
		s.logger.WithError(err).Error("failed to create guest user")
		writeError(w, http.StatusInternalServerError, "failed to create guest user")
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, User: publicUser(guest)})
}

func (s *GameServer) requireUsers(w http.ResponseWriter) bool {
	if s.users == nil {
		writeError(w, http.StatusNotImplemented, "accounts are not enabled on this server")
		return false
	}
	return true
}

func validCredentials(req credentialsRequest) bool {
	return strings.Contains(req.Email, "@") && req.Password != ""
}

// CreateUserHandler registers an account and signs it in.
func (s *GameServer) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireUsers(w) {
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validCredentials(req) {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user := &models.User{Email: req.Email, Password: req.Password, Username: req.Username}
	if user.Username == "" {
		user.Username = strings.SplitN(req.Email, "@", 2)[0]
	}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already exists")
			return
		}
		s.logger.WithError(err).Error("failed to create user")
		writeError(w, http.StatusInternalServerError, "error creating user")
		return
	}
	s.respondWithToken(w, http.StatusCreated, user)
}

// LoginHandler exchanges email and password for a session token, also sent as a cookie.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password"
//	}
func (s *GameServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireUsers(w) {
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := s.users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidCredentials) {
			s.logger.WithError(err).Error("failed to authenticate user")
		}
		writeError(w, http.StatusForbidden, "authentication failed")
		return
	}
	s.respondWithToken(w, http.StatusOK, user)
}

// ClaimGuestHandler turns the calling guest into a registered account, keeping its id and record.
func (s *GameServer) ClaimGuestHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireUsers(w) {
		return
	}
	id := mustIdentity(r)
	user, err := s.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, statusFor(err), "user not found")
		return
	}
	if !user.IsEphemeral {
		writeError(w, http.StatusBadRequest, "user is not a guest")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !validCredentials(req) {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	user.Email = req.Email
	user.Password = req.Password
	if req.Username != "" {
		user.Username = req.Username
	}
	user.IsEphemeral = false

	if err := s.users.UpdateUserCredentials(r.Context(), user); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already exists")
			return
		}
		s.logger.WithError(err).Error("failed to claim guest user")
		writeError(w, http.StatusInternalServerError, "failed to claim guest user")
		return
	}
	s.respondWithToken(w, http.StatusOK, user)
}

// MeHandler returns the calling user with their record.
func (s *GameServer) MeHandler(w http.ResponseWriter, r *http.Request) {
	id := mustIdentity(r)
	if s.users == nil {
		writeJSON(w, http.StatusOK, &models.User{ID: id.UserID, Username: "Guest", IsEphemeral: id.Guest})
		return
	}
	user, err := s.users.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		writeError(w, statusFor(err), "user not found")
		return
	}
	writeJSON(w, http.StatusOK, publicUser(user))
}

func (s *GameServer) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := s.signer.CreateToken(user.ID, user.IsEphemeral)
	if err != nil {
		s.logger.WithError(err).Error("failed to sign token")
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	s.setAuthCookie(w, token)
	writeJSON(w, status, tokenResponse{Token: token, User: publicUser(user)})
}
