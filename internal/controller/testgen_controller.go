package controller

import (
	"errors"
	"net/http"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TestGenController struct {
	service *service.TestGenService
	logger  *zap.Logger
}

func NewTestGenController(service *service.TestGenService, logger *zap.Logger) *TestGenController {
	return &TestGenController{service: service, logger: logger}
}

// GenerateTest runs a full generation session. A failed session is still a 200: the
// failure is part of the result.
func (tc *TestGenController) GenerateTest(c *gin.Context) {
	var request service.GenerateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		tc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	tc.logger.Info("Generating test",
		zap.String("project", request.Project),
		zap.String("class", request.ClassName),
		zap.String("method", request.MethodName))

	result, err := tc.service.GenerateTest(c.Request.Context(), request)
	if err != nil {
		tc.writeError(c, "Failed to start generation", err)
		return
	}

	c.JSON(http.StatusOK, model.GenerateTestResponse{
		Result:     *result,
		DurationMS: result.Duration.Milliseconds(),
	})
}

func (tc *TestGenController) BuildIndex(c *gin.Context) {
	var request model.IndexRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		tc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	tc.logger.Info("Indexing project",
		zap.String("project", request.Project),
		zap.Bool("force", request.Force))

	res, err := tc.service.IndexProject(c.Request.Context(), request.Project, request.Force)
	if err != nil {
		tc.writeError(c, "Failed to index project", err)
		return
	}

	status := "indexed"
	if res.AlreadyIndexed {
		status = "already_indexed"
	}
	c.JSON(http.StatusOK, model.IndexResponse{
		Project:        res.Project,
		Status:         status,
		AlreadyIndexed: res.AlreadyIndexed,
		Files:          res.Files,
		Classes:        res.Classes,
		Methods:        res.Methods,
		Errors:         res.Errors,
		DurationMS:     res.Duration.Milliseconds(),
	})
}

func (tc *TestGenController) ResolveType(c *gin.Context) {
	var request model.ResolveTypeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		tc.logger.Error("Invalid request payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	res, err := tc.service.ResolveType(c.Request.Context(), request.Project, request.Name, request.ContextPackage)
	if err != nil {
		tc.writeError(c, "Failed to resolve type", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (tc *TestGenController) GetStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, model.StatsResponse{Statistics: tc.service.GetStatistics()})
}

// writeError maps invalid requests to 400 and everything else to 500.
func (tc *TestGenController) writeError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, service.ErrInvalidRequest) {
		status = http.StatusBadRequest
	}
	tc.logger.Error(message, zap.Int("status", status), zap.Error(err))
	c.JSON(status, model.ErrorResponse{Error: message, Details: err.Error()})
}
