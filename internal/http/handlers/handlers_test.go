package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/geo"
	"github.com/retrotrack/backend/internal/http/middleware"
	"github.com/retrotrack/backend/internal/models"
	"github.com/retrotrack/backend/internal/service"
)

// tenHours routes every pair in ten hours.
type tenHours struct{}

func (tenHours) RouteSeconds(ctx context.Context, from, to geo.Coordinates) (float64, error) {
	return 36000, nil
}

type testServer struct {
	engine    *gin.Engine
	repo      db.Repository
	uploadDir string
}

func newTestServer(t *testing.T, maxUpload int64) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	uploadDir := t.TempDir()
	h := &Handler{
		Repo: store,
		Pipeline: &service.Pipeline{
			Repo: store,
			Optimizer: &service.Optimizer{
				Geocoder: geo.MockGeocoder{},
				Router:   tenHours{},
				Store:    store,
				Workers:  2,
				Logger:   zerolog.Nop(),
			},
			Logger: zerolog.Nop(),
		},
		Validator:      validator.New(),
		Logger:         zerolog.Nop(),
		UploadDir:      uploadDir,
		MaxUploadBytes: maxUpload,
	}

	r := gin.New()
	api := r.Group("/api", middleware.RequireUser())
	api.POST("/datasets", h.UploadDataset)
	api.GET("/datasets", h.ListDatasets)
	api.GET("/datasets/:id", h.GetDataset)
	api.DELETE("/datasets/:id", h.DeleteDataset)
	api.POST("/datasets/:id/rederive", h.RederiveDataset)
	api.POST("/datasets/:id/optimize", h.OptimizeDataset)
	api.GET("/datasets/:id/inefficient", h.InefficientRoutes)
	api.GET("/datasets/:id/cost-analysis", h.CostAnalysis)
	api.GET("/datasets/:id/summary", h.Summary)

	return testServer{engine: r, repo: store, uploadDir: uploadDir}
}

func (s testServer) do(t *testing.T, method, path, user string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// workbook returns an xlsx with one late shipment (28h delay) and one on
// time shipment.
func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]any{
		{"Base Address", "Shipping Address", "Starting Time",
			"Expected Delivery Time (hours)", "Actual Delivery Time (hours)",
			"Expected Delivery Cost (VND)", "Actual Delivery Cost (VND)", "Max Delivery Cost (VND/hr)"},
		{"12 Le Loi, Hue", "3 Tran Phu, Da Nang", "2024-01-01T00:00:00", 2, 30, 100000, 400000, 20000},
		{"12 Le Loi, Hue", "8 Hung Vuong, Hoi An", "2024-01-02T00:00:00", 2, 3, 100000, 120000, 20000},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func makeMultipartBody(t *testing.T, fieldName, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func upload(t *testing.T, s testServer, user, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := makeMultipartBody(t, "file", filename, content)
	return s.do(t, http.MethodPost, "/api/datasets", user, body, ct)
}

func uploadedID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var res service.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Dataset.ID)
	return res.Dataset.ID
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestUploadStoresInefficientRoutes(t *testing.T) {
	s := newTestServer(t, 10<<20)

	w := upload(t, s, "u1", "march.xlsx", workbook(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var res service.IngestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "u1", res.Dataset.UserID)
	assert.Equal(t, "march.xlsx", res.Dataset.Filename)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Inefficient)
	assert.Equal(t, 1, res.Inserted)
	assert.Nil(t, res.Fill)

	w = s.do(t, http.MethodGet, "/api/datasets/"+res.Dataset.ID+"/inefficient", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.DelayRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 28.0, rows[0].DelayHours)
	assert.Nil(t, rows[0].OptimizedDeliveryHours)
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	s := newTestServer(t, 10<<20)

	w := upload(t, s, "u1", "routes.csv", []byte("a,b\n1,2\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNSUPPORTED_FILE", errorCode(t, w))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	s := newTestServer(t, 1024)

	w := upload(t, s, "u1", "big.xlsx", bytes.Repeat([]byte("x"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", errorCode(t, w))

	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadCorruptWorkbookIsParseError(t *testing.T) {
	s := newTestServer(t, 10<<20)

	w := upload(t, s, "u1", "broken.xlsx", []byte("not a zip archive"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PARSE_ERROR", errorCode(t, w))

	list, err := s.repo.ListDatasets(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMissingUserHeader(t *testing.T) {
	s := newTestServer(t, 10<<20)

	w := s.do(t, http.MethodGet, "/api/datasets", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
}

func TestUploadRejectsPathLikeUserIDs(t *testing.T) {
	s := newTestServer(t, 10<<20)
	parent := filepath.Dir(s.uploadDir)

	for _, user := range []string{"../../escaped", "..", "a/b", `a\b`, "nul\x00id", strings.Repeat("u", 129)} {
		w := upload(t, s, user, "march.xlsx", workbook(t))
		assert.Equal(t, http.StatusBadRequest, w.Code, user)
		assert.Equal(t, "INVALID_USER", errorCode(t, w), user)
	}

	_, err := os.Stat(filepath.Join(parent, "escaped"))
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	w := s.do(t, http.MethodGet, "/api/datasets", "u1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestDatasetOfAnotherUserIsNotFound(t *testing.T) {
	s := newTestServer(t, 10<<20)
	id := uploadedID(t, upload(t, s, "owner", "march.xlsx", workbook(t)))

	for _, path := range []string{"/api/datasets/" + id, "/api/datasets/" + id + "/summary"} {
		w := s.do(t, http.MethodGet, path, "intruder", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := s.do(t, http.MethodDelete, "/api/datasets/"+id, "intruder", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/datasets", "intruder", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestInvalidDatasetID(t *testing.T) {
	s := newTestServer(t, 10<<20)

	w := s.do(t, http.MethodGet, "/api/datasets/not-a-uuid", "u1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestOptimizeThenCostAnalysis(t *testing.T) {
	s := newTestServer(t, 10<<20)
	id := uploadedID(t, upload(t, s, "u1", "march.xlsx", workbook(t)))

	w := s.do(t, http.MethodGet, "/api/datasets/"+id+"/cost-analysis", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = s.do(t, http.MethodPost, "/api/datasets/"+id+"/optimize", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fill service.FillResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fill))
	assert.Equal(t, 1, fill.Improved)
	assert.Equal(t, 1, fill.Updated)

	w = s.do(t, http.MethodGet, "/api/datasets/"+id+"/cost-analysis", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.CostRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0].OptimizedDeliveryHours)
	assert.Equal(t, 200000.0, rows[0].OptimizedCost)
	assert.Equal(t, 600000.0, rows[0].ActualCost)
	assert.Equal(t, 400000.0, rows[0].CostSaved)

	// second pass finds nothing left to fill
	w = s.do(t, http.MethodPost, "/api/datasets/"+id+"/optimize", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fill))
	assert.Equal(t, 0, fill.Updated)
}

func TestSummary(t *testing.T) {
	s := newTestServer(t, 10<<20)
	id := uploadedID(t, upload(t, s, "u1", "march.xlsx", workbook(t)))

	w := s.do(t, http.MethodGet, "/api/datasets/"+id+"/summary", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep models.SummaryReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.Equal(t, id, rep.DatasetID)
	assert.Equal(t, 1, rep.InefficientCount)
	assert.Equal(t, 28.0, rep.TotalDelayedHours)
	assert.Equal(t, 20.0, rep.TotalTimeSavedHours)
	assert.Equal(t, 400000.0, rep.TotalCostSaved)
}

func TestDeleteAndRederive(t *testing.T) {
	s := newTestServer(t, 10<<20)
	id := uploadedID(t, upload(t, s, "u1", "march.xlsx", workbook(t)))

	w := s.do(t, http.MethodPost, "/api/datasets/"+id+"/rederive", "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+id+`","inserted":0}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/datasets/"+id, "u1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+id+`","routes_removed":1}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/datasets/"+id, "u1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
