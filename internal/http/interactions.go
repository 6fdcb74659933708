package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/idmx-dev/poolhouse/internal/flow"
)

// interactionHandler expone la máquina del flow sobre HTTP. Son endpoints
// JSON finitos: el render de las pantallas es del front, acá solo se
// reporta el estado resultante y el redirect cuando lo hay.
type interactionHandler struct {
	orch *flow.Orchestrator
}

func newInteractionHandler(orch *flow.Orchestrator) *interactionHandler {
	return &interactionHandler{orch: orch}
}

func (h *interactionHandler) Register(r chi.Router) {
	r.Route("/interaction/{uid}", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/confirm", h.confirm)
		r.Get("/abort", h.abort)
		r.Post("/register", h.register)
		r.Post("/mfa-verify", h.mfaVerify)
		r.Post("/mfa-verify-backup", h.mfaVerifyBackup)
		r.Post("/mfa-setup", h.mfaSetupGenerate)
		r.Post("/mfa-setup/verify", h.mfaSetupVerify)
		r.Post("/mfa-setup/complete", h.mfaSetupComplete)
	})
}

type outcomeResponse struct {
	Status     string `json:"status"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func writeOutcome(w http.ResponseWriter, out *flow.Outcome) {
	writeJSON(w, http.StatusOK, outcomeResponse{
		Status:     string(out.Status),
		RedirectTo: out.RedirectTo,
	})
}

func (h *interactionHandler) login(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	out, err := h.orch.Login(r.Context(), uid, body.Email, body.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) confirm(w http.ResponseWriter, r *http.Request) {
	out, err := h.orch.Consent(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) abort(w http.ResponseWriter, r *http.Request) {
	out, err := h.orch.Abort(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) register(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
		GivenName       string `json:"given_name"`
		FamilyName      string `json:"family_name"`
		EnableMFA       bool   `json:"enable_mfa"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.Password != body.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "password_mismatch", "passwords do not match")
		return
	}

	out, err := h.orch.Register(r.Context(), uid, flow.RegisterInput{
		Email:      body.Email,
		Password:   body.Password,
		GivenName:  body.GivenName,
		FamilyName: body.FamilyName,
		EnableMFA:  body.EnableMFA,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) mfaVerify(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body struct {
		TOTPCode string `json:"totp_code"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if len(body.TOTPCode) != 6 {
		writeError(w, http.StatusBadRequest, "invalid_code", "please enter a valid 6-digit code")
		return
	}

	out, err := h.orch.VerifyMFA(r.Context(), uid, body.TOTPCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) mfaVerifyBackup(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body struct {
		BackupCode string `json:"backup_code"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.BackupCode == "" {
		writeError(w, http.StatusBadRequest, "invalid_code", "please enter a valid backup code")
		return
	}

	out, err := h.orch.VerifyBackupCode(r.Context(), uid, body.BackupCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}

func (h *interactionHandler) mfaSetupGenerate(w http.ResponseWriter, r *http.Request) {
	setup, err := h.orch.GenerateMFASetup(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":        setup.DeviceID,
		"secret":           setup.Secret,
		"provisioning_uri": setup.ProvisioningURI,
		"backup_codes":     setup.BackupCodes,
	})
}

func (h *interactionHandler) mfaSetupVerify(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	var body struct {
		DeviceID string `json:"device_id"`
		TOTPCode string `json:"totp_code"`
	}
	if err := readJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	ok, err := h.orch.VerifyMFASetup(r.Context(), uid, body.DeviceID, body.TOTPCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": ok})
}

func (h *interactionHandler) mfaSetupComplete(w http.ResponseWriter, r *http.Request) {
	out, err := h.orch.CompleteMFASetup(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeOutcome(w, out)
}
