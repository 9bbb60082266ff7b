package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/prayatna/fraudscreen/backend/internal/queue"
	"github.com/prayatna/fraudscreen/backend/internal/server/middleware"
	"github.com/prayatna/fraudscreen/backend/internal/storage"
	"github.com/prayatna/fraudscreen/backend/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// PostDocumentHandler accepts an application document upload, stores it and
// enqueues it for asynchronous screening.
func PostDocumentHandler(c echo.Context) error {
	type postDocumentResponse struct {
		Message    string `json:"message"`
		DocumentID string `json:"document_id,omitempty"`
		FileKey    string `json:"file_key,omitempty"`
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, postDocumentResponse{
			Message: "Missing document file",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, postDocumentResponse{
			Message: "Failed to read document file",
		})
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil || len(contents) == 0 {
		return c.JSON(http.StatusBadRequest, postDocumentResponse{
			Message: "Document file is empty",
		})
	}

	documentID, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, postDocumentResponse{
			Message: "Internal server error",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	fileKey, err := storage.PutDocument(ctx, app.S3, documentID, fileHeader.Filename, bytes.NewReader(contents))
	if err != nil {
		logger.Error("[Server] Failed to store document", "err", err)
		return c.JSON(http.StatusInternalServerError, postDocumentResponse{
			Message: "Failed to store document",
		})
	}

	msg, err := json.Marshal(queue.ScreenDocumentMsg{
		DocumentID: documentID,
		FileKey:    fileKey,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, postDocumentResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(app.Queue, queue.ScreenQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue document", "documentId", documentID, "err", err)
		return c.JSON(http.StatusInternalServerError, postDocumentResponse{
			Message: "Failed to enqueue document",
		})
	}

	return c.JSON(http.StatusAccepted, postDocumentResponse{
		Message:    "Document queued for screening",
		DocumentID: documentID,
		FileKey:    fileKey,
	})
}
