package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Answerer produces a grounded answer for a question about one book.
type Answerer interface {
	Answer(ctx context.Context, bookID, message string) (string, error)
}

type ChatHandler struct {
	engine   Answerer
	validate *validator.Validate
	log      *zap.Logger
}

func NewChatHandler(engine Answerer, log *zap.Logger) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		validate: validator.New(),
		log:      log,
	}
}

type ChatRequest struct {
	BookID  string `json:"bookId" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

// Message answers a question about a single book. Internal failure detail
// never reaches the client; callers get a fixed message and can retry.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bookId and message are required")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "bookId and message are required")
		return
	}

	answer, err := h.engine.Answer(r.Context(), req.BookID, req.Message)
	if err != nil {
		h.log.Error("chat request failed",
			zap.String("book_id", req.BookID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "AI processing failed")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: answer})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
