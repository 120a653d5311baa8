// Package api exposes the converter over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/releve-converter/internal/extractor"
	"github.com/insightdelivered/releve-converter/internal/logger"
	"github.com/insightdelivered/releve-converter/internal/models"
	"github.com/insightdelivered/releve-converter/internal/parser"
	"github.com/insightdelivered/releve-converter/internal/writer"
)

// ConvertResponse is the JSON response from the /api/convert endpoint.
type ConvertResponse struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	RequestID string            `json:"requestId,omitempty"`
	Statement *models.Statement `json:"statement,omitempty"`
	CSV       string            `json:"csv,omitempty"`
	Count     int               `json:"count"`
	Version   string            `json:"version,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Parser       *parser.Parser
	Log          zerolog.Logger
	CSVSeparator rune
	Version      string
	// Lines extracts a temporary PDF upload; nil means extractor.PDF.
	Lines func(ctx context.Context, path string) ([]string, error)
}

// NewApp returns a fiber app with the API routes registered.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             32 << 20,
		DisableStartupMessage: true,
	})
	h.Register(app)
	return app
}

// Register sets up the routes.
func (h *Handler) Register(app *fiber.App) {
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "POST, GET, OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	app.Get("/api/health", h.HandleHealth)
	app.Post("/api/convert", h.HandleConvert)
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.Version,
	})
}

// HandleConvert parses a statement sent either as form field "text" or as an
// uploaded .txt/.pdf in field "file". With format=xlsx the spreadsheet is
// returned instead of JSON.
func (h *Handler) HandleConvert(c *fiber.Ctx) error {
	reqID := uuid.NewString()
	log := h.Log.With().Str("request_id", reqID).Logger()
	ctx := logger.WithContext(c.UserContext(), log)

	lines, status, err := h.readInput(ctx, c)
	if err != nil {
		log.Warn().Err(err).Msg("rejected convert request")
		return h.writeError(c, status, reqID, "", err.Error())
	}

	stmt, err := h.Parser.Parse(ctx, lines)
	if err != nil {
		log.Warn().Err(err).Str("kind", parser.Kind(err)).Msg("parsing failed")
		return h.writeError(c, fiber.StatusUnprocessableEntity, reqID, parser.Kind(err), fmt.Sprintf("Parsing failed: %v", err))
	}

	if c.FormValue("format") == "xlsx" {
		var buf bytes.Buffer
		if err := (&writer.XLSXWriter{}).Write(&buf, stmt); err != nil {
			return h.writeError(c, fiber.StatusInternalServerError, reqID, "internal", err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Attachment("releve.xlsx")
		return c.Send(buf.Bytes())
	}

	var csvBuf bytes.Buffer
	csvWriter := &writer.CSVWriter{
		Separator:     h.CSVSeparator,
		Decimal:       h.Parser.Options().Locale.Decimal,
		IncludeHeader: c.FormValue("header") != "false",
	}
	if err := csvWriter.Write(&csvBuf, stmt); err != nil {
		return h.writeError(c, fiber.StatusInternalServerError, reqID, "internal", fmt.Sprintf("CSV generation failed: %v", err))
	}

	return c.JSON(ConvertResponse{
		Success:   true,
		RequestID: reqID,
		Statement: stmt,
		CSV:       csvBuf.String(),
		Count:     len(stmt.Transactions()),
		Version:   h.Version,
	})
}

func (h *Handler) readInput(ctx context.Context, c *fiber.Ctx) ([]string, int, error) {
	if text := c.FormValue("text"); text != "" {
		return parser.SplitLines(text), fiber.StatusOK, nil
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fiber.StatusBadRequest, errors.New("no statement uploaded: use form field 'file' or 'text'")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !extractor.Supported(fh.Filename) {
		return nil, fiber.StatusBadRequest, fmt.Errorf("unsupported file type %q: only .txt and .pdf are accepted", ext)
	}

	if ext == ".txt" {
		f, err := fh.Open()
		if err != nil {
			return nil, fiber.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
		}
		defer f.Close()
		lines, err := extractor.ReadLines(f)
		if err != nil {
			return nil, fiber.StatusBadRequest, err
		}
		return lines, fiber.StatusOK, nil
	}

	tmp, err := os.CreateTemp("", "releve-*.pdf")
	if err != nil {
		return nil, fiber.StatusInternalServerError, errors.New("failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	src, err := fh.Open()
	if err != nil {
		tmp.Close()
		return nil, fiber.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}
	_, err = io.Copy(tmp, src)
	src.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fiber.StatusInternalServerError, errors.New("failed to save uploaded file")
	}

	extract := h.Lines
	if extract == nil {
		extract = extractor.PDF{}.Lines
	}
	lines, err := extract(ctx, tmp.Name())
	if err != nil {
		return nil, fiber.StatusUnprocessableEntity, fmt.Errorf("PDF extraction failed: %w", err)
	}
	return lines, fiber.StatusOK, nil
}

func (h *Handler) writeError(c *fiber.Ctx, status int, reqID, kind, msg string) error {
	return c.Status(status).JSON(ConvertResponse{
		Success:   false,
		Error:     msg,
		Kind:      kind,
		RequestID: reqID,
		Version:   h.Version,
	})
}
