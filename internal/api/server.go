package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flashdeck/internal/models"
	"flashdeck/internal/services"
)

const (
	maxMultipartMemory    = 8 << 20 // 8 MB
	defaultMaxUploadBytes = 20 << 20
)

type Server struct {
	mux       *http.ServeMux
	workspace *services.Workspace
	jobs      *JobManager
	logger    *zap.Logger
	maxUpload int64
}

func NewServer(workspace *services.Workspace, logger *zap.Logger, maxUploadBytes int64) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		mux:       http.NewServeMux(),
		workspace: workspace,
		jobs:      NewJobManager(),
		logger:    logger,
		maxUpload: maxUploadBytes,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/workspace", s.handleWorkspace)
	s.mux.HandleFunc("/api/workspace/escalate", s.handleEscalate)
	s.mux.HandleFunc("/api/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/generate/file", s.handleGenerateFile)
	s.mux.HandleFunc("/api/cards", s.handleAddCard)
	s.mux.HandleFunc("/api/cards/", s.handleDeleteCard)
	s.mux.HandleFunc("/api/decks", s.handleDecks)
	s.mux.HandleFunc("/api/decks/", s.handleDeckActions)
	s.mux.HandleFunc("/api/quiz", s.handleQuiz)
	s.mux.HandleFunc("/api/quiz/", s.handleQuizActions)
	s.mux.HandleFunc("/api/jobs/", s.handleJobStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.workspace.Snapshot())
}

type escalateRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload escalateRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	s.workspace.SetEscalate(payload.Enabled)
	writeJSON(w, http.StatusOK, s.workspace.Snapshot())
}

type generateRequest struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload generateRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	run, err := s.workspace.GenerateFromTopic(payload.Topic, payload.Count)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.startRun(w, run)
}

func (s *Server) handleGenerateFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	count, _ := strconv.Atoi(strings.TrimSpace(r.FormValue("count")))

	var (
		fileName string
		mimeType string
		data     []byte
	)
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid file upload")
		return
	default:
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload")
			return
		}
		fileName = header.Filename
		mimeType = header.Header.Get("Content-Type")
	}

	run, err := s.workspace.GenerateFromFile(fileName, mimeType, data, count)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.startRun(w, run)
}

type addCardRequest struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

func (s *Server) handleAddCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload addCardRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	card, err := s.workspace.AddCard(payload.Term, payload.Definition)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"card":      card,
		"workspace": s.workspace.Snapshot(),
	})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	raw, ok := pathParam(r.URL.Path, "/api/cards/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid card index")
		return
	}
	run, err := s.workspace.DeleteCard(index, r.URL.Query().Get("term"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.startRun(w, run)
}

type saveDeckRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleDecks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		decks, err := s.workspace.ListDecks(r.Context())
		if err != nil {
			if services.CodeOf(err) != services.CodeStorageCorrupt {
				s.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"decks": []models.SavedDeck{}, "error": services.UserMessage(err)})
			return
		}
		if decks == nil {
			decks = []models.SavedDeck{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
	case http.MethodPost:
		var payload saveDeckRequest
		if !decodeJSON(w, r, &payload) {
			return
		}
		saved, err := s.workspace.SaveDeck(r.Context(), payload.Name)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"deck": saved, "message": s.workspace.Snapshot().Message})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleDeckActions(w http.ResponseWriter, r *http.Request) {
	raw, ok := pathParam(r.URL.Path, "/api/decks/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(raw, "/")
	timestamp, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deck timestamp")
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "load":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		if _, err := s.workspace.LoadDeck(r.Context(), timestamp); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.workspace.Snapshot())
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		if err := s.workspace.DeleteDeck(r.Context(), timestamp); err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": s.workspace.Snapshot().Message})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, s.workspace.QuizView())
}

type startQuizRequest struct {
	Count int `json:"count"`
}

type answerRequest struct {
	Option int `json:"option"`
}

func (s *Server) handleQuizActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	action, ok := pathParam(r.URL.Path, "/api/quiz/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch action {
	case "start":
		var payload startQuizRequest
		if !decodeJSON(w, r, &payload) {
			return
		}
		run, err := s.workspace.StartQuiz(payload.Count)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.startRun(w, run)
	case "answer":
		var payload answerRequest
		if !decodeJSON(w, r, &payload) {
			return
		}
		correct, err := s.workspace.AnswerQuiz(payload.Option)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"correct": correct, "quiz": s.workspace.QuizView()})
	case "next", "retry", "exit":
		var err error
		switch action {
		case "next":
			err = s.workspace.NextQuestion()
		case "retry":
			err = s.workspace.RetryQuiz()
		default:
			err = s.workspace.ExitQuiz()
		}
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.workspace.QuizView())
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	jobID, ok := pathParam(r.URL.Path, "/api/jobs/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	job, ok := s.jobs.GetJob(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// startRun answers with the workspace when there is nothing to run, and
// otherwise hands the run to a background job.
func (s *Server) startRun(w http.ResponseWriter, run *services.Run) {
	if run == nil {
		writeJSON(w, http.StatusOK, s.workspace.Snapshot())
		return
	}
	jobID, snapshot := s.jobs.CreateJob(run.Kind, s.workspace.Snapshot().Message)

	go s.runJob(context.Background(), jobID, run)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runJob(ctx context.Context, jobID string, run *services.Run) {
	defer func() {
		if rec := recover(); rec != nil {
			run.Discard()
			s.logger.Error("job panicked", zap.String("job", jobID), zap.Any("panic", rec))
			s.jobs.MarkFailed(jobID, errors.New("internal error"))
		}
	}()

	s.jobs.MarkProcessing(jobID)
	if err := run.Execute(ctx, s.jobs.Sink(jobID)); err != nil {
		s.logger.Warn("job failed", zap.String("job", jobID), zap.String("kind", string(run.Kind)), zap.Error(err))
		s.jobs.MarkFailed(jobID, err)
		return
	}
	s.jobs.MarkCompleted(jobID)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	code := services.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", string(code)), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error": services.UserMessage(err),
		"code":  string(code),
	})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.CodeInvalidInput:
		return http.StatusBadRequest
	case services.CodeBusy, services.CodeQuizState:
		return http.StatusConflict
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeUnsupportedFile:
		return http.StatusUnsupportedMediaType
	case services.CodeEmptyExtraction:
		return http.StatusUnprocessableEntity
	case services.CodeStorageFull:
		return http.StatusInsufficientStorage
	case services.CodeLLMService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// pathParam returns what follows prefix, without surrounding slashes.
func pathParam(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	return rest, rest != ""
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
