package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"servicelines-be/internal/pkg/serverutils"
	"servicelines-be/internal/service"
	"servicelines-be/pkg/attachment"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, token, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/workflow/v1/attachments", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAttachmentExtract(t *testing.T) {
	sessions := service.NewSessionService("test-secret", time.Hour)
	issued, err := sessions.Issue()
	require.NoError(t, err)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewAttachmentController(attachment.PlainTextExtractor{}, sessions).RegisterRoutes(app.Group("/api"))

	resp, err := app.Test(uploadRequest(t, issued.Token, "scope.txt", []byte("Replace pump seals")), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	var env struct {
		Data struct {
			Filename string `json:"filename"`
			Text     string `json:"text"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "scope.txt", env.Data.Filename)
	assert.Equal(t, "Replace pump seals", env.Data.Text)

	resp, err = app.Test(uploadRequest(t, issued.Token, "scan.pdf", []byte{0xff, 0xfe, 0x00}), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
