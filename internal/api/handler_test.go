package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/releve-converter/internal/parser"
	"github.com/insightdelivered/releve-converter/internal/statementtest"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	p, err := parser.New(parser.DefaultOptions())
	require.NoError(t, err)
	return NewApp(&Handler{
		Parser:  p,
		Log:     zerolog.Nop(),
		Version: "test",
		Lines: func(ctx context.Context, path string) ([]string, error) {
			return nil, errors.New("no poppler in tests")
		},
	})
}

func statementText(closing string) string {
	return statementtest.NewDocument(statementtest.Portrait, "EUR").
		Header().
		Balance("CREDITEUR", "01.03.2019", "1.000,00").
		Row("05.03", "VIREMENT SALAIRE", "05.03", "", "500,00").
		Subtotal("0,00", "500,00").
		Balance("CREDITEUR", "31.03.2019", closing).
		Text()
}

type part struct {
	field, filename, content string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		if p.filename == "" {
			require.NoError(t, mw.WriteField(p.field, p.content))
			continue
		}
		fw, err := mw.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, p.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, resp *http.Response) ConvertResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out ConvertResponse
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}

	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
}

func TestConvertEndpointRequiresFile(t *testing.T) {
	app := setupTestApp(t)

	req := httptest.NewRequest("POST", "/api/convert", nil)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=----test")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Should fail because no file in the body
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400 for missing file, got %d", resp.StatusCode)
	}
}

func TestConvert_Text(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t, part{field: "text", content: statementText("1.500,00")}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, 1, out.Count)
	assert.NotEmpty(t, out.RequestID)
	assert.Contains(t, out.CSV, "05/03/2019;05/03/2019;;500,00;VIREMENT SALAIRE")
	assert.Contains(t, out.CSV, "# Devise;EUR")
}

func TestConvert_TextFileUpload(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t,
		part{field: "file", filename: "releve_2019-03.txt", content: statementText("1.500,00")},
		part{field: "header", content: "false"},
	))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, 1, out.Count)
	assert.NotContains(t, out.CSV, "# Devise")
}

func TestConvert_Mismatch(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t, part{field: "text", content: statementText("1.600,00")}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	out := decode(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, "reconciliation_mismatch", out.Kind)
	assert.Contains(t, out.Error, "balance")
	assert.Nil(t, out.Statement)
}

func TestConvert_UnsupportedFile(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t, part{field: "file", filename: "releve.docx", content: "x"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, ".docx")
}

func TestConvert_PDFExtractionFailure(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t, part{field: "file", filename: "releve.pdf", content: "%PDF-1.4"}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decode(t, resp).Error, "PDF extraction failed")
}

func TestConvert_XLSX(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(multipartRequest(t,
		part{field: "text", content: statementText("1.500,00")},
		part{field: "format", content: "xlsx"},
	))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")), "xlsx is a zip archive")
}
