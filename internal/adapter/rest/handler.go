package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/adapter/events"
	"github.com/eslsoft/lingoledger/internal/adapter/mapping"
	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
	"github.com/eslsoft/lingoledger/internal/usecase"
)

// Handler serves the ledger API.
type Handler struct {
	ledgers usecase.LedgerUsecase
	sweeper usecase.SweepUsecase
	logger  logrus.FieldLogger
	clock   func() time.Time
}

func NewHandler(ledgers usecase.LedgerUsecase, sweeper usecase.SweepUsecase, logger logrus.FieldLogger) *Handler {
	return &Handler{ledgers: ledgers, sweeper: sweeper, logger: logger, clock: time.Now}
}

type answerRequest struct {
	ExerciseID string `json:"exercise_id" binding:"required,max=191"`
	Answer     string `json:"answer" binding:"required,max=2048"`
}

type completionRequest struct {
	Kind       string `json:"kind" binding:"required,oneof=lesson reading listening speaking writing"`
	ExerciseID string `json:"exercise_id" binding:"required,max=191"`
	Points     *int64 `json:"points" binding:"required,min=0"`
}

type identityEvent struct {
	Type string `json:"type" binding:"required"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type paymentEvent struct {
	Type   string `json:"type" binding:"required"`
	UserID string `json:"user_id"`
}

type listLedgersRequest struct {
	Filter   string `form:"filter"`
	OrderBy  string `form:"order_by"`
	PageNo   int32  `form:"page_no" binding:"min=0"`
	PageSize int32  `form:"page_size" binding:"min=0,max=500"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) getLedger(c *gin.Context) {
	ledger, err := h.ledgers.GetLedger(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping.ToLedgerView(ledger, h.clock()))
}

func (h *Handler) canAttempt(c *gin.Context) {
	allowed, ledger, err := h.ledgers.CanAttempt(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed": allowed,
		"ledger":  mapping.ToLedgerView(ledger, h.clock()),
	})
}

func (h *Handler) submitAnswer(c *gin.Context) {
	var req answerRequest
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}
	result, err := h.ledgers.SubmitAnswer(c.Request.Context(), currentUser(c), req.ExerciseID, req.Answer)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{
		"status":      result.Status,
		"exercise_id": req.ExerciseID,
		"ledger":      mapping.ToLedgerView(result.Ledger, h.clock()),
	}
	if result.Exercise != nil {
		body["kind"] = result.Exercise.Kind
		if result.Status == entity.AnswerAwarded {
			body["points_awarded"] = result.Exercise.Points
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) wrongAnswer(c *gin.Context) {
	ledger, err := h.ledgers.ApplyWrongAnswer(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping.ToLedgerView(ledger, h.clock()))
}

func (h *Handler) recordCompletion(c *gin.Context) {
	var req completionRequest
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}
	ledger, awarded, err := h.ledgers.RecordCompletion(c.Request.Context(), entity.CompletionEvent{
		UserID:     currentUser(c),
		Kind:       entity.ExerciseKind(req.Kind),
		ExerciseID: req.ExerciseID,
		Points:     *req.Points,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"awarded": awarded,
		"ledger":  mapping.ToLedgerView(ledger, h.clock()),
	})
}

func (h *Handler) identityWebhook(c *gin.Context) {
	var req identityEvent
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}
	if req.Type != events.TypeUserCreated {
		c.JSON(http.StatusAccepted, gin.H{"ignored": true})
		return
	}
	ledger, created, err := h.ledgers.Provision(c.Request.Context(), req.Data.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"created": created,
		"ledger":  mapping.ToLedgerView(ledger, h.clock()),
	})
}

func (h *Handler) paymentsWebhook(c *gin.Context) {
	var req paymentEvent
	if !h.bind(c, c.ShouldBindJSON(&req)) {
		return
	}
	if req.Type != events.TypeSubscriptionActivated {
		c.JSON(http.StatusAccepted, gin.H{"ignored": true})
		return
	}
	ledger, err := h.ledgers.ActivateSubscription(c.Request.Context(), req.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mapping.ToLedgerView(ledger, h.clock()))
}

func (h *Handler) runSweep(c *gin.Context) {
	start := time.Now()
	swept, err := h.sweeper.Sweep(c.Request.Context(), h.clock())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept, "duration_ms": time.Since(start).Milliseconds()})
}

func (h *Handler) listLedgers(c *gin.Context) {
	var req listLedgersRequest
	if !h.bind(c, c.ShouldBindQuery(&req)) {
		return
	}
	query := &repository.ListLedgerQuery{
		Pagination:  repository.Pagination{PageNo: req.PageNo, PageSize: req.PageSize},
		FilterOrder: repository.FilterOrder{Filter: req.Filter, OrderBy: req.OrderBy},
	}
	ledgers, total, err := h.ledgers.ListLedgers(c.Request.Context(), query)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ledgers":   mapping.ToLedgerViews(ledgers, h.clock()),
		"total":     total,
		"page_no":   query.PageNo,
		"page_size": query.PageSize,
	})
}

// bind reports whether binding succeeded, writing a 400 otherwise.
func (h *Handler) bind(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": mapping.ErrorBody{
		Code:    "invalid_request",
		Message: describeBindError(err),
	}})
	return false
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, body := mapping.ToHTTPError(err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("user_id", currentUser(c)).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
