// Package students mounts the REST surface used by chat and tool handlers.
package students

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type profileRequest struct {
	DisplayName string `json:"displayName"`
	FirstName   string `json:"firstName"`
	AgeGroup    string `json:"ageGroup"`
	StudyLevel  string `json:"studyLevel"`
}

type recordFactRequest struct {
	FactType   string   `json:"factType"`
	FactText   string   `json:"factText"`
	Source     string   `json:"source"`
	Confidence *float64 `json:"confidence"`
}

type promptRequest struct {
	Topic   string                  `json:"topic"`
	Profile *model.ProfileOverrides `json:"profile"`
}

type memoryContextResponse struct {
	StudentID string               `json:"studentId"`
	Topic     string               `json:"topic"`
	Degraded  bool                 `json:"degraded"`
	Profile   model.StudentProfile `json:"profile"`
	Facts     []model.MemoryFact   `json:"facts"`
	Prompt    string               `json:"prompt"`
}

// MountRoutes mounts the student memory endpoints on the given router.
func MountRoutes(r *gin.Engine, svc *memory.Service) {
	if svc == nil {
		return
	}
	g := r.Group("/v1")

	g.PUT("/students/:studentId", func(c *gin.Context) { upsertStudent(c, svc) })
	g.GET("/students/:studentId", func(c *gin.Context) { getStudent(c, svc) })
	g.GET("/students/:studentId/facts", func(c *gin.Context) { listFacts(c, svc) })
	g.POST("/students/:studentId/facts", func(c *gin.Context) { recordFact(c, svc) })
	g.DELETE("/facts/:factId", func(c *gin.Context) { deactivateFact(c, svc) })
	g.GET("/students/:studentId/memory-context", func(c *gin.Context) { getMemoryContext(c, svc) })
	g.POST("/students/:studentId/memory-context/prompt", func(c *gin.Context) { formatPrompt(c, svc) })
}

func upsertStudent(c *gin.Context, svc *memory.Service) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	profile, err := svc.UpsertStudent(c.Request.Context(), model.StudentProfile{
		StudentID:   c.Param("studentId"),
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		AgeGroup:    req.AgeGroup,
		StudyLevel:  req.StudyLevel,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func getStudent(c *gin.Context, svc *memory.Service) {
	profile, err := svc.GetStudentProfile(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func listFacts(c *gin.Context, svc *memory.Service) {
	includeInactive := false
	if raw := c.Query("includeInactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": "includeInactive", "error": "must be true or false"})
			return
		}
		includeInactive = v
	}
	facts, err := svc.ListFacts(c.Request.Context(), c.Param("studentId"), includeInactive)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": facts})
}

func recordFact(c *gin.Context, svc *memory.Service) {
	var req recordFactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
		return
	}
	fact, err := svc.RecordFact(c.Request.Context(), model.RecordFactRequest{
		StudentID:  c.Param("studentId"),
		FactType:   model.FactType(req.FactType),
		FactText:   req.FactText,
		Source:     model.FactSource(req.Source),
		Confidence: req.Confidence,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fact)
}

func deactivateFact(c *gin.Context, svc *memory.Service) {
	factID, err := uuid.Parse(c.Param("factId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "field": "factId", "error": "invalid fact ID"})
		return
	}
	if err := svc.DeactivateFact(c.Request.Context(), factID); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getMemoryContext(c *gin.Context, svc *memory.Service) {
	mc, err := svc.GetStudentMemoryContext(c.Request.Context(), c.Param("studentId"), c.Query("topic"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, memoryContextResponse{
		StudentID: mc.StudentID,
		Topic:     mc.TopicHint,
		Degraded:  mc.Degraded,
		Profile:   mc.Profile,
		Facts:     mc.Facts,
		Prompt:    svc.FormatMemoryForPrompt(mc, nil),
	})
}

func formatPrompt(c *gin.Context, svc *memory.Service) {
	var req promptRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error()})
			return
		}
	}
	mc, err := svc.GetStudentMemoryContext(c.Request.Context(), c.Param("studentId"), req.Topic)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prompt":   svc.FormatMemoryForPrompt(mc, req.Profile),
		"degraded": mc.Degraded,
	})
}

func handleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var studentNotFound *memory.StudentNotFoundError
	var validation *registrystore.ValidationError
	var transient *registrystore.TransientError

	switch {
	case errors.As(err, &studentNotFound), errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &transient):
		log.Warn("Fact store unavailable", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"code": "unavailable", "error": "fact store unavailable"})
	default:
		log.Error("Student route error", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
