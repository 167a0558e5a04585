package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/auth"
	"github.com/deckards/deckards-server/internal/database"
	"github.com/deckards/deckards-server/internal/models"
)

// EnsureUser resolves the authenticated user from the auth cookie, creating
// an ephemeral guest account (and setting its cookie) when the visitor has no
// valid token.
func EnsureUser(w http.ResponseWriter, r *http.Request) (*models.User, error) {
	cookieHeader := r.Header.Get("Cookie")
	if strings.Contains(cookieHeader, "auth_token=") {
		token := extractCookieToken(cookieHeader, "auth_token")
		if userIDStr, err := auth.AuthenticateJWT(token); err == nil {
			userID, parseErr := uuid.Parse(userIDStr)
			if parseErr != nil {
				return nil, fmt.Errorf("invalid user id in token: %w", parseErr)
			}
			u, dbErr := database.GetUserByID(r.Context(), userID)
			if dbErr != nil {
				return nil, fmt.Errorf("user lookup failed: %w", dbErr)
			}
			return u, nil
		}
	}

	guest := models.User{
		Username:    "Guest",
		IsEphemeral: true,
	}
	if err := database.CreateUser(context.Background(), &guest); err != nil {
		return nil, fmt.Errorf("failed to create ephemeral user: %w", err)
	}
	token, err := auth.CreateJWT(guest.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create ephemeral JWT: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		HttpOnly: true,
		Path:     "/",
	})
	return &guest, nil
}

// CreateUserHandler registers a new permanent account.
func CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		Username  string `json:"username"`
		AvatarURL string `json:"avatarUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	user := models.User{
		Email:     req.Email,
		Password:  req.Password,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
	}

	if err := database.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			http.Error(w, "email already exists", http.StatusConflict)
			return
		}
		http.Error(w, "error creating user", http.StatusInternalServerError)
		return
	}

	user.Password = ""
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler authenticates a user and issues a session token, both in the
// response body and as an HTTP-only cookie.
func LoginHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}

		user, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
		if err != nil {
			logger.WithError(err).Warn("failed to authenticate user")
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		token, err := auth.CreateJWT(user.ID.String())
		if err != nil {
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
			MaxAge:   auth.TokenTTLSeconds(),
		})

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(loginResponse{Token: token}); err != nil {
			http.Error(w, "failed to write response", http.StatusInternalServerError)
		}
	}
}
