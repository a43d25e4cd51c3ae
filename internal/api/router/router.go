package router

import (
	"context"
	"crypto/subtle"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"adequa-rag/internal/api/handler"
)

// NewServer 创建带 OpenTelemetry 链路追踪的 Hertz 服务
func NewServer(address string, opts ...config.Option) *server.Hertz {
	tracer, tracingCfg := hertztracing.NewServerTracer()
	opts = append([]config.Option{
		server.WithHostPorts(address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	}, opts...)
	h := server.New(opts...)
	h.Use(hertztracing.ServerMiddleware(tracingCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		ctx.Next(c)
		hlog.CtxInfof(c, "%s %s -> %d", ctx.Method(), ctx.Path(), ctx.Response.StatusCode())
	})
	return h
}

// RegisterRoutes 注册 API 路由；apiKeys 非空时除健康检查外都需要 Bearer API key
func RegisterRoutes(h *server.Hertz, hd *handler.Handler, apiKeys []string) {
	api := h.Group("/api/v1")
	api.GET("/health", hd.HandleHealth)

	protected := h.Group("/api/v1")
	if len(apiKeys) > 0 {
		protected.Use(apiKeyAuth(apiKeys))
	}
	protected.POST("/resumes/upload", hd.HandleUpload)
	protected.GET("/indexes", hd.HandleListIndexes)
	protected.POST("/candidates/rank", hd.HandleRank)
	protected.GET("/rankings/:run_id/export", hd.HandleExport)
}

func apiKeyAuth(keys []string) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			for _, k := range keys {
				if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效的API key"})
		}),
	)
}
