package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/repository"
)

// UsersHandler registers API callers. Tokens are issued here, shown once in
// the create response and stored only as the lookup key.
type UsersHandler struct {
	users *repository.UserRepository
}

func NewUsersHandler(users *repository.UserRepository) *UsersHandler {
	return &UsersHandler{users: users}
}

type createUserPayload struct {
	Username string `json:"username"`
}

type createdUserResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload createUserPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Username) == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	user := &model.User{
		Username: payload.Username,
		Token:    uuid.NewString(),
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		logger.WithError(err).WithField("username", payload.Username).
			Error("failed to create user")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, createdUserResponse{
		ID:       user.ID,
		Username: user.Username,
		Token:    user.Token,
	})
}
