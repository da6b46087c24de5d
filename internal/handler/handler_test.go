package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"archive-depot-go/internal/model"
	"archive-depot-go/internal/pipeline"
	"archive-depot-go/internal/repository"
	"archive-depot-go/internal/service"
	"archive-depot-go/pkg/database"
	"archive-depot-go/pkg/fetch"
	"archive-depot-go/pkg/storage"
	"archive-depot-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	engine    *gin.Engine
	downloads service.DownloadService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	root := t.TempDir()
	store, err := storage.NewLocal(filepath.Join(root, "archives"))
	require.NoError(t, err)

	archiveRepo := repository.NewArchiveRepository(db)
	configRepo := repository.NewSystemConfigRepository(db)
	archiveSvc := service.NewArchiveService(archiveRepo, store)
	downloadSvc := service.NewDownloadService(service.NewJobRegistry(), fetch.NewClient(0), store, archiveSvc, service.DownloadOptions{})
	t.Cleanup(downloadSvc.Close)
	assembler := pipeline.NewAssembler(archiveRepo, configRepo, store, filepath.Join(root, "install"))
	configSvc := service.NewSystemConfigService(configRepo, archiveRepo, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := service.NewAuthService(string(hash), token.NewJWTManager("jwt", 1))

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/auth/token", NewAuthHandler(authSvc).IssueToken)

	archives := NewArchiveHandler(archiveSvc, 1)
	api.POST("/archives", archives.Upload)
	api.GET("/archives", archives.List)
	api.GET("/archives/:id", archives.Get)
	api.PUT("/archives/:id", archives.Update)
	api.DELETE("/archives/:id", archives.Delete)

	downloads := NewDownloadHandler(downloadSvc, 10*time.Millisecond)
	api.POST("/downloads", downloads.Start)
	api.GET("/downloads", downloads.List)
	api.GET("/downloads/:key", downloads.Status)
	api.GET("/downloads/:key/ws", downloads.Stream)

	configs := NewSystemConfigHandler(assembler, configSvc)
	api.POST("/system-configs", configs.Assemble)
	api.POST("/system-configs/async", configs.AssembleAsync)
	api.GET("/system-configs", configs.List)
	api.GET("/system-configs/:id", configs.Get)

	return &testApp{engine: r, downloads: downloadSvc}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (a *testApp) upload(t *testing.T, fileName, extractTo string, data []byte) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("extractTo", extractTo))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/archives", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func kindOf(t *testing.T, env envelope) string {
	t.Helper()
	var data struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Kind
}

func TestIssueToken(t *testing.T) {
	app := newTestApp(t)
	code, env := app.do(t, http.MethodPost, "/api/v1/auth/token", gin.H{"secret": "s3cret"})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "token")

	code, _ = app.do(t, http.MethodPost, "/api/v1/auth/token", gin.H{"secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = app.do(t, http.MethodPost, "/api/v1/auth/token", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestArchiveEndpoints(t *testing.T) {
	app := newTestApp(t)

	code, env := app.upload(t, "spring.zip", "engine/7.0", []byte("payload"))
	require.Equal(t, http.StatusCreated, code, env.Message)
	var archive model.Archive
	require.NoError(t, json.Unmarshal(env.Data, &archive))
	assert.Equal(t, "engine/7.0", archive.ExtractTo)
	assert.Len(t, archive.Hash, 32)

	code, env = app.upload(t, "spring.zip", "", []byte("payload"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", kindOf(t, env))

	code, _ = app.do(t, http.MethodGet, "/api/v1/archives/1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = app.do(t, http.MethodGet, "/api/v1/archives/42", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", kindOf(t, env))
	code, _ = app.do(t, http.MethodGet, "/api/v1/archives/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = app.do(t, http.MethodPut, "/api/v1/archives/1", gin.H{
		"zipName": "spring.zip", "extractTo": "engine/7.1", "zipHash": archive.Hash,
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "engine/7.1")

	code, _ = app.do(t, http.MethodDelete, "/api/v1/archives/1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = app.do(t, http.MethodDelete, "/api/v1/archives/1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUploadTooLarge(t *testing.T) {
	app := newTestApp(t)
	code, _ := app.upload(t, "big.zip", "mods/big", bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSystemConfigEndpoints(t *testing.T) {
	app := newTestApp(t)
	_, env := app.upload(t, "spring.zip", "engine/7.0", zipOf(t, map[string]string{"base/a.sdz": "a"}))
	var engine model.Archive
	require.NoError(t, json.Unmarshal(env.Data, &engine))
	_, env = app.upload(t, "evo.zip", "mods/evo", zipOf(t, map[string]string{"units/a.lua": "a"}))
	var mod model.Archive
	require.NoError(t, json.Unmarshal(env.Data, &mod))

	code, env := app.do(t, http.MethodPost, "/api/v1/system-configs", gin.H{
		"name": "evo-on-7.0", "engineId": engine.ID, "modId": mod.ID,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var cfg model.SystemConfiguration
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, model.DefaultVariant, cfg.Variant)
	assert.NotEqual(t, engine.Hash, cfg.EngineHash)

	code, env = app.do(t, http.MethodPost, "/api/v1/system-configs", gin.H{
		"name": "x", "engineId": engine.ID, "modId": 999,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", kindOf(t, env))

	code, _ = app.do(t, http.MethodPost, "/api/v1/system-configs", gin.H{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = app.do(t, http.MethodPost, "/api/v1/system-configs/async", gin.H{
		"name": "x", "engineId": engine.ID, "modId": mod.ID,
	})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", kindOf(t, env))

	code, _ = app.do(t, http.MethodGet, "/api/v1/system-configs/1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = app.do(t, http.MethodGet, "/api/v1/system-configs", nil)
	assert.Equal(t, http.StatusOK, code)
	var all []model.SystemConfiguration
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Len(t, all, 1)
}

func TestDownloadEndpoints(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote zip bytes"))
	}))
	defer remote.Close()
	app := newTestApp(t)

	code, env := app.do(t, http.MethodPost, "/api/v1/downloads", gin.H{
		"key": "job1", "url": remote.URL, "fileName": "remote.zip", "extractTo": "mods/remote",
	})
	require.Equal(t, http.StatusAccepted, code, env.Message)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := app.downloads.Wait(ctx, "job1")
	require.NoError(t, err)

	code, env = app.do(t, http.MethodGet, "/api/v1/downloads/job1", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"inserted"`)

	code, env = app.do(t, http.MethodGet, "/api/v1/downloads/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", kindOf(t, env))

	code, env = app.do(t, http.MethodPost, "/api/v1/downloads", gin.H{"key": "", "url": remote.URL, "fileName": "a.zip", "extractTo": "mods/a"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_argument", kindOf(t, env))

	code, env = app.do(t, http.MethodGet, "/api/v1/downloads", nil)
	assert.Equal(t, http.StatusOK, code)
	var list []model.DownloadProgress
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)
}

func TestDownloadStream(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote zip bytes"))
	}))
	defer remote.Close()
	app := newTestApp(t)
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	code, _ := app.do(t, http.MethodPost, "/api/v1/downloads", gin.H{
		"key": "ws1", "url": remote.URL, "fileName": "ws.zip", "extractTo": "mods/ws",
	})
	require.Equal(t, http.StatusAccepted, code)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/downloads/ws1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var last map[string]interface{}
	for {
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		last = frame
	}
	require.NotNil(t, last)
	assert.Equal(t, "inserted", last["status"])

	// 未知 key 在升级前就返回 404
	resp, err := http.Get(srv.URL + "/api/v1/downloads/nope/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
