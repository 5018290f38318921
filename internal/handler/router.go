package handler

import (
	"bytes"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/armchr/testgen/internal/config"
	"github.com/armchr/testgen/internal/controller"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// responseWriter wraps gin.ResponseWriter to capture the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func SetupRouter(testGenController *controller.TestGenController, cfg *config.Config, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(CustomRecoveryMiddleware(logger))
	router.Use(LoggerMiddleware(cfg.App.DebugHTTP, logger))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/tests/generate", testGenController.GenerateTest)
		v1.POST("/index", testGenController.BuildIndex)
		v1.POST("/types/resolve", testGenController.ResolveType)
		v1.GET("/stats", testGenController.GetStatistics)

		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "healthy",
			})
		})
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

const maxLoggedBody = 10000

// quietPaths are polled by probes and scrapers; they are logged at Debug.
var quietPaths = map[string]bool{
	"/api/v1/health": true,
	"/metrics":       true,
}

// LoggerMiddleware logs each request and response. With debugHTTP the bodies are logged
// too, truncated to maxLoggedBody bytes.
func LoggerMiddleware(debugHTTP bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		logf := logger.Info
		if quietPaths[path] {
			logf = logger.Debug
		}

		requestFields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		var responseBody *bytes.Buffer
		if debugHTTP {
			if c.Request.Body != nil {
				requestBody, _ := io.ReadAll(c.Request.Body)
				c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
				if len(requestBody) > 0 {
					requestFields = append(requestFields, zap.String("request_body", truncateBody(string(requestBody))))
				}
			}
			responseBody = &bytes.Buffer{}
			c.Writer = &responseWriter{ResponseWriter: c.Writer, body: responseBody}
		}
		logf("HTTP Request", requestFields...)

		c.Next()

		responseFields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if responseBody != nil && responseBody.Len() > 0 {
			responseFields = append(responseFields, zap.String("response_body", truncateBody(responseBody.String())))
		}
		logf("HTTP Response", responseFields...)
	}
}

func truncateBody(body string) string {
	if len(body) <= maxLoggedBody {
		return body
	}
	return body[:maxLoggedBody] + "... (truncated)"
}

func CustomRecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("stack", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
