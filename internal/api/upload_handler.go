package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"portfolio/internal/api/middleware"
	"portfolio/internal/metrics"
	"portfolio/internal/storage"
)

// 上传种类。
const (
	UploadKindImage = "image"
	UploadKindPDF   = "pdf"
)

// multipartOverhead 为表单边界与其它字段预留的请求体余量。
const multipartOverhead = 64 * 1024

// objectStore 是上传需要的对象存储能力。
type objectStore interface {
	PutObject(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// virusScanner 扫描上传内容，clean=false 表示检出病毒。
type virusScanner interface {
	Scan(ctx context.Context, r io.Reader) (clean bool, err error)
}

// ClamdScanner 通过 clamd 的 INSTREAM 扫描文件。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewClamdScanner 构造扫描器，addr 形如 tcp://clamav:3310。
func NewClamdScanner(addr string) *ClamdScanner {
	return &ClamdScanner{client: clamd.NewClamd(addr)}
}

// Scan 实现 virusScanner。
func (s *ClamdScanner) Scan(ctx context.Context, r io.Reader) (bool, error) {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return false, fmt.Errorf("clamd scan: %w", err)
	}
	clean := true
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case result, ok := <-results:
			if !ok {
				return clean, nil
			}
			switch result.Status {
			case clamd.RES_OK:
			case clamd.RES_FOUND:
				clean = false
			default:
				return false, fmt.Errorf("clamd scan: %s %s", result.Status, result.Description)
			}
		}
	}
}

// UploadHandler 处理文件上传与删除。
type UploadHandler struct {
	storage  objectStore
	scanner  virusScanner
	maxBytes int64
	now      func() time.Time
}

// NewUploadHandler 构造处理器，scanner 可以为 nil。
func NewUploadHandler(store objectStore, scanner virusScanner, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		storage:  store,
		scanner:  scanner,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

func (h *UploadHandler) tooLargeMessage() string {
	return fmt.Sprintf("File too large (max %dMB)", h.maxBytes/(1024*1024))
}

// Upload 接收 multipart 字段 file，按 kind 校验类型后存入对象存储。
func (h *UploadHandler) Upload(c *gin.Context) {
	kind := c.DefaultQuery("kind", UploadKindImage)
	if kind != UploadKindImage && kind != UploadKindPDF {
		BadRequest(c, "Unknown upload kind")
		return
	}
	logger := middleware.LoggerFromContext(c).With(slog.String("kind", kind))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(c, kind, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		h.reject(c, kind, http.StatusBadRequest, "No file provided")
		return
	}
	if file.Size > h.maxBytes {
		h.reject(c, kind, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return
	}

	src, err := file.Open()
	if err != nil {
		logger.Error("open upload failed", slog.Any("error", err))
		h.reject(c, kind, http.StatusInternalServerError, "Upload failed")
		return
	}
	data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	src.Close()
	if err != nil {
		logger.Error("read upload failed", slog.Any("error", err))
		h.reject(c, kind, http.StatusInternalServerError, "Upload failed")
		return
	}
	if int64(len(data)) > h.maxBytes {
		h.reject(c, kind, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return
	}

	contentType, ext := detectType(data, file.Header.Get("Content-Type"))
	if !allowedType(kind, contentType) {
		msg := "Only image files allowed"
		if kind == UploadKindPDF {
			msg = "Only PDF files allowed"
		}
		h.reject(c, kind, http.StatusUnsupportedMediaType, msg)
		return
	}

	if h.scanner != nil {
		clean, err := h.scanner.Scan(c.Request.Context(), bytes.NewReader(data))
		if err != nil {
			logger.Error("scan upload failed", slog.Any("error", err))
			h.reject(c, kind, http.StatusInternalServerError, "Upload failed")
			return
		}
		if !clean {
			logger.Warn("malicious upload rejected", slog.String("filename", file.Filename))
			h.reject(c, kind, http.StatusBadRequest, "Malicious file detected")
			return
		}
	}

	folder := storage.FolderProjects
	if kind == UploadKindPDF {
		folder = storage.FolderUploads
	}
	objectKey := storage.NewObjectKey(folder, file.Filename, ext, h.now())

	url, err := h.storage.PutObject(c.Request.Context(), objectKey, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		logger.Error("store upload failed", slog.String("pathname", objectKey), slog.Any("error", err))
		h.reject(c, kind, http.StatusInternalServerError, "Upload failed")
		return
	}

	metrics.ObserveUpload(kind, "stored")
	logger.Info("upload stored", slog.String("pathname", objectKey), slog.Int("size", len(data)))
	c.JSON(http.StatusOK, gin.H{"url": url, "pathname": objectKey})
}

func (h *UploadHandler) reject(c *gin.Context, kind string, status int, msg string) {
	metrics.ObserveUpload(kind, strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_"))
	Error(c, status, msg)
}

// detectType 以文件内容嗅探为准；无法识别时回退到表单声明的类型。
func detectType(data []byte, declared string) (contentType string, ext string) {
	detected := mimetype.Detect(data)
	if !detected.Is("application/octet-stream") && !detected.Is("text/plain") {
		return detected.String(), strings.TrimPrefix(detected.Extension(), ".")
	}
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
		return mediaType, ""
	}
	return detected.String(), ""
}

func allowedType(kind, contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch kind {
	case UploadKindPDF:
		return mediaType == "application/pdf"
	default:
		return strings.HasPrefix(mediaType, "image/")
	}
}

// DeleteBlob 删除已上传的对象，pathname 必须位于公开目录下。
func (h *UploadHandler) DeleteBlob(c *gin.Context) {
	pathname := c.Query("pathname")
	if pathname == "" {
		BadRequest(c, "Missing pathname")
		return
	}
	if err := storage.ValidatePathname(pathname); err != nil {
		BadRequest(c, "Invalid pathname")
		return
	}
	if err := h.storage.DeleteObject(c.Request.Context(), pathname); err != nil {
		middleware.LoggerFromContext(c).Error("delete blob failed",
			slog.String("pathname", pathname),
			slog.Any("error", err),
		)
		Internal(c, "Delete failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
