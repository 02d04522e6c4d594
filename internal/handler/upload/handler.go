package upload

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	uploadservice "github.com/zhouzirui/talknest/backend/internal/service/upload"
	"github.com/zhouzirui/talknest/backend/pkg/utils"
)

const (
	formField = "file"
	// multipart 解析时保存在内存中的上限，超出部分写入临时文件
	maxMemory = 32 << 20
	// 边界与表单头的额外开销
	multipartOverhead = 1 << 20
)

// Response 上传成功的响应体
type Response struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Handler 上传服务的HTTP处理器
type Handler struct {
	store         uploadservice.Store
	publicBaseURL string
	maxBytes      int64
	log           *zap.Logger
}

// New 创建上传处理器。publicBaseURL 为空时根据请求推导。
func New(store uploadservice.Store, publicBaseURL string, maxBytes int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:         store,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxBytes:      maxBytes,
		log:           log.Named("upload"),
	}
}

// RegisterRoutes 注册上传与静态资源路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)

	files := http.StripPrefix(uploadservice.PathPrefix, http.FileServer(h.store.FileSystem()))
	r.Get(uploadservice.PathPrefix+"*", files.ServeHTTP)
}

// handleUpload 处理单文件 multipart 上传
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(h.log, w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.log.Debug("multipart parse failed", zap.Error(err))
		utils.RespondError(h.log, w, http.StatusBadRequest, "No file uploaded")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		utils.RespondError(h.log, w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	asset, err := h.store.Save(r.Context(), h.baseURL(r), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		switch {
		case errors.Is(err, uploadservice.ErrNoFile):
			utils.RespondError(h.log, w, http.StatusBadRequest, "No file uploaded")
			return
		case errors.Is(err, uploadservice.ErrTooLarge):
			utils.RespondError(h.log, w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.log.Error("store upload failed", zap.String("name", header.Filename), zap.Error(err))
		utils.RespondError(h.log, w, http.StatusInternalServerError, "upload failed")
		return
	}

	utils.RespondJSON(h.log, w, http.StatusOK, Response{URL: asset.URL, Type: asset.MediaType})
}

// baseURL 返回用于拼接资源地址的绝对前缀
func (h *Handler) baseURL(r *http.Request) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
