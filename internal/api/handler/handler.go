package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"

	"adequa-rag/internal/export"
	"adequa-rag/internal/processor"
	"adequa-rag/internal/types"
)

// Ranker 排名服务
type Ranker interface {
	RankCandidates(ctx context.Context, jobDescription, indexID string) (*types.RankingResult, error)
	GetRun(ctx context.Context, runID string) (*types.RankingResult, error)
}

// Uploader 上传与索引列表服务
type Uploader interface {
	UploadResumes(ctx context.Context, userID string, files []processor.UploadFile) (*processor.UploadResult, error)
	ListIndexes(ctx context.Context, userID string) ([]processor.IndexSummary, error)
}

// RankRequest POST /candidates/rank 的请求体
type RankRequest struct {
	JobDescription string `json:"job_description" validate:"required"`
	IndexID        string `json:"index_id" validate:"required,max=128"`
}

var validate = validator.New()

// Handler 处理排名、上传和导出请求
type Handler struct {
	ranker   Ranker
	uploader Uploader
	// 服务未能创建时的原因，请求时返回 503
	rankerErr   error
	uploaderErr error

	version string
	started time.Time
	logger  *log.Logger
}

// Option 是 Handler 的配置选项
type Option func(*Handler)

// WithRanker 设置排名服务；err 非空表示服务不可用
func WithRanker(r Ranker, err error) Option {
	return func(h *Handler) {
		h.ranker = r
		h.rankerErr = err
	}
}

// WithUploader 设置上传服务；err 非空表示服务不可用
func WithUploader(u Uploader, err error) Option {
	return func(h *Handler) {
		h.uploader = u
		h.uploaderErr = err
	}
}

// WithVersion 健康检查中返回的版本号
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithLogger 设置日志记录器
func WithLogger(l *log.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// New 创建 Handler
func New(opts ...Option) *Handler {
	h := &Handler{
		version: "dev",
		started: time.Now(),
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth 健康检查
func (h *Handler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"ranking":        h.rankerErr == nil && h.ranker != nil,
		"upload":         h.uploaderErr == nil && h.uploader != nil,
	})
}

// HandleRank 对索引中的候选人排名
func (h *Handler) HandleRank(ctx context.Context, c *app.RequestContext) {
	if !h.rankerReady(ctx, c) {
		return
	}
	var req RankRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是有效的JSON"})
		return
	}
	req.JobDescription = strings.TrimSpace(req.JobDescription)
	if err := validate.Struct(req); err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": fmt.Sprintf("参数校验失败: %v", err)})
		return
	}

	result, err := h.ranker.RankCandidates(ctx, req.JobDescription, req.IndexID)
	if err != nil {
		h.logger.Printf("排名失败: 索引 %s: %v", req.IndexID, err)
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleUpload 接收 multipart 的 files 字段并构建新索引
func (h *Handler) HandleUpload(ctx context.Context, c *app.RequestContext) {
	if !h.uploaderReady(ctx, c) {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "无效的multipart表单"})
		return
	}
	userID := strings.TrimSpace(c.PostForm("user_id"))
	if userID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "user_id 不能为空"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}

	files, closeAll, err := openAll(headers)
	defer closeAll()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}

	result, err := h.uploader.UploadResumes(ctx, userID, files)
	if err != nil {
		h.logger.Printf("上传失败: 用户 %s: %v", userID, err)
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, result)
}

func openAll(headers []*multipart.FileHeader) ([]processor.UploadFile, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]processor.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, processor.UploadFile{Name: fh.Filename, Content: f})
	}
	return files, closeAll, nil
}

// HandleListIndexes 列出用户的索引
func (h *Handler) HandleListIndexes(ctx context.Context, c *app.RequestContext) {
	if !h.uploaderReady(ctx, c) {
		return
	}
	list, err := h.uploader.ListIndexes(ctx, c.Query("user_id"))
	if err != nil {
		writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"indexes": list, "total": len(list)})
}

// HandleExport 把一次排名导出为 xlsx
func (h *Handler) HandleExport(ctx context.Context, c *app.RequestContext) {
	if !h.rankerReady(ctx, c) {
		return
	}
	runID := c.Param("run_id")
	if runID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "run_id 不能为空"})
		return
	}
	result, err := h.ranker.GetRun(ctx, runID)
	if err != nil {
		writeError(ctx, c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteRanking(&buf, result); err != nil {
		h.logger.Printf("导出排名 %s 失败: %v", runID, err)
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "生成Excel失败"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ranking_%s.xlsx"`, runID))
	c.Data(consts.StatusOK, xlsxContentType, buf.Bytes())
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) rankerReady(ctx context.Context, c *app.RequestContext) bool {
	if h.ranker == nil || h.rankerErr != nil {
		writeError(ctx, c, unavailable("ranking", h.rankerErr))
		return false
	}
	return true
}

func (h *Handler) uploaderReady(ctx context.Context, c *app.RequestContext) bool {
	if h.uploader == nil || h.uploaderErr != nil {
		writeError(ctx, c, unavailable("upload", h.uploaderErr))
		return false
	}
	return true
}
