package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flashdeck/internal/kv"
	"flashdeck/internal/services"
)

// stubCompleter returns queued card batches and a fixed distractor array.
type stubCompleter struct {
	mu      sync.Mutex
	batches []string
	gate    chan struct{}
}

func (s *stubCompleter) Complete(ctx context.Context, _ string, opts services.CompletionOptions) (string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if opts.JSONMode {
		return `["wrong one","wrong two","wrong three"]`, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return "", nil
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

func newTestServer(t *testing.T, completer services.Completer) *httptest.Server {
	t.Helper()
	logger := zap.NewNop()
	ws := services.NewWorkspace(services.WorkspaceConfig{
		Completer: completer,
		Decks:     services.NewDeckStore(kv.NewMemoryStore(), logger, time.Now),
		Logger:    logger,
		Seed:      7,
	})
	srv := httptest.NewServer(NewServer(ws, logger, 1<<20).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func waitForJob(t *testing.T, base, id string) map[string]any {
	t.Helper()
	var job map[string]any
	require.Eventually(t, func() bool {
		_, job = doJSON(t, http.MethodGet, base+"/api/jobs/"+id, nil)
		status := job["status"]
		return status == JobStatusComplete || status == JobStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
}

func TestGeneratePastedPairs(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "A: a\nB: b", Count: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pasted 2 cards.", body["message"])
	assert.Len(t, body["cards"], 2)
}

func TestGenerateTopicJob(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{batches: []string{"Mitosis: cell division\nMeiosis: gamete division"}})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "Cells", Count: 2})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "topic", body["kind"])
	id, _ := body["jobId"].(string)
	require.NotEmpty(t, id)

	job := waitForJob(t, srv.URL, id)
	assert.Equal(t, JobStatusComplete, job["status"])
	assert.EqualValues(t, 2, job["cards"])
	assert.Equal(t, `Successfully generated 2 flashcards for "Cells"!`, job["message"])
	assert.NotEmpty(t, job["messages"])

	_, snap := doJSON(t, http.MethodGet, srv.URL+"/api/workspace", nil)
	assert.Len(t, snap["cards"], 2)
	assert.Equal(t, false, snap["busy"])
	assert.Equal(t, "Cells", snap["defaultDeckName"])
}

func TestGenerateRejectsWhileBusy(t *testing.T) {
	completer := &stubCompleter{batches: []string{"A: a"}, gate: make(chan struct{})}
	srv := newTestServer(t, completer)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "Letters", Count: 1})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	id := body["jobId"].(string)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "Other", Count: 1})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(services.CodeBusy), body["code"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/cards", addCardRequest{Term: "x", Definition: "y"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(completer.gate)
	job := waitForJob(t, srv.URL, id)
	assert.Equal(t, JobStatusComplete, job["status"])
}

func TestGenerateValidation(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "x", Count: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Please enter a valid number of flashcards (1-500).", body["error"])

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/generate", strings.NewReader("{"))
	require.NoError(t, err)
	resp, body = send(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid payload", body["error"])
}

func multipartUpload(t *testing.T, url, fileName, contentType string, data []byte, count string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("count", count))
	if fileName != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
		header["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestGenerateFile(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	t.Run("MissingFile", func(t *testing.T) {
		resp, body := send(t, multipartUpload(t, srv.URL+"/api/generate/file", "", "", nil, "5"))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Please select a file first.", body["error"])
	})

	t.Run("Unsupported", func(t *testing.T) {
		resp, body := send(t, multipartUpload(t, srv.URL+"/api/generate/file", "photo.png", "image/png", []byte("png"), "5"))
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
		assert.Equal(t, "Unsupported file type: image/png. Please use PDF or DOCX.", body["error"])
	})

	t.Run("TooLarge", func(t *testing.T) {
		big := bytes.Repeat([]byte("x"), 1<<20+32<<10)
		resp, _ := send(t, multipartUpload(t, srv.URL+"/api/generate/file", "big.pdf", "application/pdf", big, "5"))
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestCards(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/cards", addCardRequest{Term: "Enzyme", Definition: "catalyst"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"term": "Enzyme", "definition": "catalyst"}, body["card"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/cards", addCardRequest{Term: "enzyme", Definition: "again"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, `The term "enzyme" already exists. Please enter a unique term.`, body["error"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/cards/zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/cards/0?term=Other", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/api/cards/0?term=Enzyme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "All flashcards deleted. Generate new ones or add manually?", body["message"])
}

func TestDecks(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/decks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["decks"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/decks", saveDeckRequest{Name: "Empty"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No flashcards to save.", body["error"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "A: a\nB: b", Count: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/decks", saveDeckRequest{Name: "Letters"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `Deck "Letters" saved successfully!`, body["message"])
	deck := body["deck"].(map[string]any)
	ts := int64(deck["timestamp"].(float64))
	base := srv.URL + "/api/decks/" + strconv.FormatInt(ts, 10)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/decks", nil)
	assert.Len(t, body["decks"], 1)

	resp, body = doJSON(t, http.MethodPost, base+"/load", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `Loaded deck: "Letters" with 2 cards.`, body["message"])
	assert.EqualValues(t, 2, body["desiredCount"])

	resp, _ = doJSON(t, http.MethodGet, base+"/load", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Deck deleted successfully.", body["message"])

	resp, body = doJSON(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Deck not found for deletion.", body["error"])

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/decks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQuizFlow(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/quiz/start", startQuizRequest{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Please generate or load flashcards before starting a quiz.", body["error"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/generate", generateRequest{Topic: "A: a\nB: b", Count: 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/start", startQuizRequest{Count: 2})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := waitForJob(t, srv.URL, body["jobId"].(string))
	require.Equal(t, JobStatusComplete, job["status"])
	assert.Equal(t, "Quiz ready with 2 questions.", job["message"])

	_, view := doJSON(t, http.MethodGet, srv.URL+"/api/quiz", nil)
	assert.Equal(t, string(services.QuizInQuestion), view["state"])
	assert.Len(t, view["options"], 4)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/next", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/answer", answerRequest{Option: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "correct")

	resp, view = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, view["index"])

	resp, view = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/exit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(services.QuizIdle), view["state"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/quiz/dance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobNotFound(t *testing.T) {
	srv := newTestServer(t, &stubCompleter{})
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "job not found", body["error"])
}

func TestStatusFor(t *testing.T) {
	cases := map[services.ErrorCode]int{
		services.CodeInvalidInput:    http.StatusBadRequest,
		services.CodeBusy:            http.StatusConflict,
		services.CodeQuizState:       http.StatusConflict,
		services.CodeNotFound:        http.StatusNotFound,
		services.CodeUnsupportedFile: http.StatusUnsupportedMediaType,
		services.CodeEmptyExtraction: http.StatusUnprocessableEntity,
		services.CodeStorageFull:     http.StatusInsufficientStorage,
		services.CodeLLMService:      http.StatusBadGateway,
		services.CodeStorageCorrupt:  http.StatusInternalServerError,
		services.CodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}
}
