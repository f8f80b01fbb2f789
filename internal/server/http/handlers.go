package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/server/google"
	"github.com/alprslanymeria/oauthserver/internal/server/services"
)

const msgGoogleDenied = "Google login was cancelled or denied."

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type clientTokenRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type deactivateRequest struct {
	Password string `json:"password"`
}

type passkeyLoginBeginRequest struct {
	Email string `json:"email"`
}

// passkeyCompleteRequest echoes the request id from the begin step together
// with the browser's PublicKeyCredential JSON.
type passkeyCompleteRequest struct {
	RequestID  string          `json:"requestId"`
	Credential json.RawMessage `json:"credential"`
}

type userResponse struct {
	ID          string    `json:"id"`
	UserName    string    `json:"userName"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	FirstName   string    `json:"firstName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type passkeyResponse struct {
	ID           string    `json:"id"`
	CredentialID string    `json:"credentialId"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req services.SignInRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.deps.Auth.SignIn(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var req services.SignUpRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	u, err := s.deps.Auth.SignUp(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:          u.ID,
		UserName:    u.UserName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
		FirstName:   u.FirstName,
		CreatedAt:   u.CreatedAt,
	})
}

func (s *Server) sendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req services.VerificationTarget
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.deps.Verification.SendCode(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	var req services.VerifyRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.deps.Verification.Verify(r.Context(), req); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deactivate(w http.ResponseWriter, r *http.Request) {
	var req deactivateRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.deps.Accounts.Deactivate(r.Context(), subjectFrom(r.Context()), req.Password); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.deps.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.deps.Auth.Revoke(r.Context(), req.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clientToken(w http.ResponseWriter, r *http.Request) {
	var req clientTokenRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.deps.Clients.IssueForClient(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) passkeyRegisterBegin(w http.ResponseWriter, r *http.Request) {
	opts, err := s.deps.Passkeys.RegisterBegin(r.Context(), subjectFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) passkeyRegisterComplete(w http.ResponseWriter, r *http.Request) {
	var req passkeyCompleteRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	cred, err := s.deps.Passkeys.RegisterComplete(r.Context(), subjectFrom(r.Context()), req.RequestID, req.Credential)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, passkeyResponse{
		ID:           cred.ID,
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.CredentialID),
		CreatedAt:    cred.CreatedAt,
	})
}

func (s *Server) passkeyLoginBegin(w http.ResponseWriter, r *http.Request) {
	var req passkeyLoginBeginRequest
	if err := decode(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}

	opts, err := s.deps.Passkeys.LoginBegin(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) passkeyLoginComplete(w http.ResponseWriter, r *http.Request) {
	var req passkeyCompleteRequest
	if err := decode(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.deps.Passkeys.LoginComplete(r.Context(), req.RequestID, req.Credential)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) googleLogin(w http.ResponseWriter, r *http.Request) {
	target, err := s.deps.Google.AuthCodeURL(r.Context(), r.URL.Query().Get("redirect_uri"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("error") != "" {
		s.fail(w, r, common.Unauthorized(msgGoogleDenied))
		return
	}

	id, redirectURI, err := s.deps.Google.Callback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.deps.Federated.BindOrCreate(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	target, err := google.BuildTokenRedirectURL(redirectURI, tok)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}
