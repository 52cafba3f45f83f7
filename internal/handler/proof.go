package handler

import (
	"log/slog"
	"net/http"

	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/service"
	"github.com/templui/goalstake/internal/validation"
)

type ProofHandler struct {
	lifecycle *service.LifecycleService
	files     *service.FileService // nil when image proofs are disabled
}

func NewProofHandler(lifecycle *service.LifecycleService, files *service.FileService) *ProofHandler {
	return &ProofHandler{
		lifecycle: lifecycle,
		files:     files,
	}
}

type submitProofRequest struct {
	Wallet          string `json:"wallet"`
	TextDescription string `json:"textDescription"`
	ImageRef        string `json:"imageRef"`
}

func (h *ProofHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Wallet == "" {
		writeError(w, r, badRequest("wallet is required"))
		return
	}

	outcome, err := h.lifecycle.SubmitProof(r.Context(), service.SubmitProofInput{
		GoalID:    r.PathValue("id"),
		Submitter: req.Wallet,
		Text:      req.TextDescription,
		ImageRef:  req.ImageRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, outcome)
}

func (h *ProofHandler) List(w http.ResponseWriter, r *http.Request) {
	proofs, err := h.lifecycle.ListProofs(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	images := []*model.File{}
	if h.files != nil {
		images, err = h.files.ProofImages(r.Context(), r.PathValue("id"))
		if err != nil {
			slog.Error("failed to list proof images", "error", err, "goal_id", r.PathValue("id"))
			writeError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"proofs": proofs, "images": images})
}

// UploadImage stores a proof image for a goal. The returned id is passed as
// imageRef when submitting the proof.
func (h *ProofHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, r, badRequest("image proofs are disabled"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, validation.ProofImageConstraints.MaxSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, r, badRequest("invalid multipart form"))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	goal, err := h.lifecycle.ProofTarget(r.Context(), r.PathValue("id"), r.FormValue("wallet"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, badRequest("image is required"))
		return
	}
	defer func() { _ = file.Close() }()

	mimeType, err := validation.ValidateFile(header, validation.ProofImageConstraints)
	if err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	stored, err := h.files.UploadProofImage(r.Context(), goal, file, header, mimeType)
	if err != nil {
		slog.Error("failed to upload proof image", "error", err, "goal_id", goal.ID)
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}
