package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/matheodrd/httphelper/handler"

	"bbqapp-core/internal/auth"
)

func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(uuid.NewString(), conn)
		return nil
	})
}

// loginHandler starts a login: against an explicit provider, or against
// the one remembered from the last successful login.
func (s *Server) loginHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		providerID := r.URL.Query().Get("provider")
		if providerID == "" {
			started, err := s.AuthManager.Login()
			if err != nil {
				return handler.NewErrWithStatus(http.StatusConflict, err)
			}
			return writeJSON(w, map[string]bool{"started": started})
		}

		if err := s.AuthManager.LoginWith(providerID); err != nil {
			switch {
			case errors.Is(err, auth.ErrUnknownProvider):
				return handler.NewErrWithStatus(http.StatusNotFound, err)
			case errors.Is(err, auth.ErrSessionConflict), errors.Is(err, auth.ErrProviderBusy):
				return handler.NewErrWithStatus(http.StatusConflict, err)
			default:
				return handler.NewErrWithStatus(http.StatusInternalServerError, err)
			}
		}
		return writeJSON(w, map[string]bool{"started": true})
	})
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if err := s.AuthManager.Logout(); err != nil {
			if errors.Is(err, auth.ErrProviderBusy) {
				return handler.NewErrWithStatus(http.StatusConflict, err)
			}
			return handler.NewErrWithStatus(http.StatusInternalServerError, err)
		}
		w.WriteHeader(http.StatusAccepted)
		return nil
	})
}

func (s *Server) sessionHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return writeJSON(w, map[string]any{
			"session":     s.AuthManager.LastSession(),
			"busy":        s.AuthManager.IsBusy(),
			"initialized": s.AuthManager.IsInitialized(),
		})
	})
}

// callbackHandler forwards the identity provider redirect to the auth
// manager, which routes it to the provider that is expecting it.
func (s *Server) callbackHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if !s.AuthManager.HandleCallback(r.URL.Query()) {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("no provider expects this callback"))
		}
		w.WriteHeader(http.StatusAccepted)
		return nil
	})
}

func writeJSON(w http.ResponseWriter, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return handler.NewErrWithStatus(http.StatusInternalServerError, err)
	}
	return nil
}
