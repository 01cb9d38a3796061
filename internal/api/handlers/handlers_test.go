package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	middleware "github.com/readstack-hq/readstack/internal/api/middlewares"
	"github.com/readstack-hq/readstack/internal/config"
	"github.com/readstack-hq/readstack/internal/core"
	"github.com/readstack-hq/readstack/internal/core/chunker"
	"github.com/readstack-hq/readstack/internal/core/coretest"
	"github.com/readstack-hq/readstack/internal/core/ingest"
	"github.com/readstack-hq/readstack/internal/core/retrieve"
	"github.com/readstack-hq/readstack/internal/models"
	"github.com/readstack-hq/readstack/internal/services"
)

type stubExtractor struct {
	segments []models.Segment
	err      error
}

func (s *stubExtractor) Extract(ctx context.Context, data []byte, mediaType string) ([]models.Segment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.segments, nil
}

type testEnv struct {
	db     *coretest.MemStore
	obj    *coretest.MemObjects
	ext    *stubExtractor
	svc    *services.BookService
	router chi.Router
	cancel context.CancelFunc
}

func newTestEnv(t *testing.T, userID string) *testEnv {
	t.Helper()

	db := coretest.NewMemStore()
	obj := coretest.NewMemObjects()
	ext := &stubExtractor{segments: []models.Segment{{Title: "One", Text: "Chapter body text."}}}
	log := zap.NewNop()

	proc := ingest.NewProcessor(db, ext, chunker.New(0), nil, log)
	ingestor := ingest.NewIngestor(db, obj, proc, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ingestor.Start(ctx, 1)

	retr := retrieve.New(db, nil)
	svc := services.NewBookService(db, obj, "test-bucket")
	cfg := &config.Config{MaxUploadMB: 10}

	bookHandler := NewBookHandler(svc, obj, ingestor, proc, cfg, log)
	searchHandler := NewSearchHandler(svc, retr, log)
	contextHandler := NewContextHandler(svc, retr, log)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), userID)))
		})
	})
	r.Post("/api/books/upload", bookHandler.UploadBook)
	r.Get("/api/books", bookHandler.GetBooks)
	r.Get("/api/books/{bookID}", bookHandler.GetBook)
	r.Post("/api/books/{bookID}/reprocess", bookHandler.ReprocessBook)
	r.Post("/api/books/{bookID}/search", searchHandler.Search)
	r.Get("/api/books/{bookID}/context", contextHandler.ContextForProgress)
	r.Post("/api/books/{bookID}/context/question", contextHandler.ContextForQuestion)

	return &testEnv{db: db, obj: obj, ext: ext, svc: svc, router: r, cancel: cancel}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestUploadBookAcceptedAndProcessedInBackground(t *testing.T) {
	env := newTestEnv(t, "u1")

	body, contentType := multipartUpload(t, "dune.epub", models.MediaTypeEPUB, []byte("epub bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/books/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var book models.Book
	decodeBody(t, rec, &book)
	assert.Equal(t, "dune", book.Title)
	assert.Equal(t, models.StatusUnprocessed, book.Status)

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := env.db.GetBookByID(context.Background(), book.ID)
		require.NoError(t, err)
		if stored.Status == models.StatusProcessed {
			assert.Equal(t, 1, stored.ChunkCount)
			break
		}
		require.True(t, time.Now().Before(deadline), "book never processed, status %s", stored.Status)
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUploadBookRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t, "u1")

	body, contentType := multipartUpload(t, "notes.txt", "text/plain", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/api/books/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func seedBook(t *testing.T, env *testEnv, userID string) *models.Book {
	t.Helper()
	book, err := env.svc.UploadAndCreate(context.Background(), userID, "book.epub",
		models.MediaTypeEPUB, []byte("raw"))
	require.NoError(t, err)
	return book
}

func TestReprocessBookSynchronous(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/reprocess", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success    bool `json:"success"`
		ChunkCount int  `json:"chunk_count"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ChunkCount)

	stored, err := env.db.GetBookByID(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, stored.Status)
}

func TestReprocessBookReportsFailureReason(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")
	env.ext.err = core.ErrCorruptFile

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/reprocess", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	decodeBody(t, rec, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "corrupt_file", resp.Reason)
}

func TestBookOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t, "intruder")
	book := seedBook(t, env, "owner")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/books/"+book.ID, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/reprocess", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetBookNotFound(t *testing.T) {
	env := newTestEnv(t, "u1")
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/books/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")
	require.NoError(t, env.db.ReplaceChunks(context.Background(), book.ID, []models.Chunk{
		{ID: "c1", BookID: book.ID, ChunkIndex: 0, TextContent: "The whale breached at dawn."},
		{ID: "c2", BookID: book.ID, ChunkIndex: 1, TextContent: "Nothing happened."},
	}))

	payload := strings.NewReader(`{"query":"whale"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/search", payload)
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Results []retrieve.SearchResult `json:"results"`
		Count   int                     `json:"count"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
}

func TestSearchEndpointRejectsMissingQuery(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")

	req := httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/search",
		strings.NewReader(`{}`))
	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContextProgressEndpoint(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")
	chunks := make([]models.Chunk, 10)
	for i := range chunks {
		chunks[i] = models.Chunk{ID: "c" + string(rune('0'+i)), BookID: book.ID, ChunkIndex: i, TextContent: "text"}
	}
	require.NoError(t, env.db.ReplaceChunks(context.Background(), book.ID, chunks))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/books/"+book.ID+"/context?progress=50", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 5, resp.Count)
}

func TestContextQuestionEndpoint(t *testing.T) {
	env := newTestEnv(t, "u1")
	book := seedBook(t, env, "u1")
	require.NoError(t, env.db.ReplaceChunks(context.Background(), book.ID, []models.Chunk{
		{ID: "c1", BookID: book.ID, ChunkIndex: 0, TextContent: "Dragons guard the mountain."},
		{ID: "c2", BookID: book.ID, ChunkIndex: 1, TextContent: "A quiet village scene."},
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/books/"+book.ID+"/context/question",
		strings.NewReader(`{"question":"where are the dragons"}`))
	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
		Chunks  []struct {
			ChunkIndex int `json:"chunk_index"`
		} `json:"chunks"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, resp.Success)
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 0, resp.Chunks[0].ChunkIndex)
}
