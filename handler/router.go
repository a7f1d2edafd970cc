package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-agent/internal/usecase"
)

const correlationKey = "correlationId"

// NewRouter builds the gin engine for the standalone server. Routes are
// registered both at the root and under /api/chat.
func NewRouter(uc ChatUseCase, log zerolog.Logger) (*gin.Engine, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), correlation(), cors(), requestLogger(log))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Message: "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, messageResponse{Message: rootMessage})
	})

	api := &routes{uc: uc}
	for _, prefix := range []string{"", routePrefix} {
		g := r.Group(prefix + "/chats")
		g.GET("", api.listConversations)
		g.POST("", api.createConversation)
		g.PUT("/:id", api.renameConversation)
		g.DELETE("/:id", api.deleteConversation)
		g.GET("/:id/messages", api.listMessages)
		g.POST("/:id/messages", api.postMessage)
	}
	return r, nil
}

type routes struct {
	uc ChatUseCase
}

func (a *routes) listConversations(c *gin.Context) {
	convs, err := a.uc.ListConversations(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (a *routes) createConversation(c *gin.Context) {
	var in createRequest
	if !bindOptional(c, &in) {
		return
	}
	conv, err := a.uc.CreateConversation(c.Request.Context(), in.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (a *routes) renameConversation(c *gin.Context) {
	var in renameRequest
	if !bindOptional(c, &in) {
		return
	}
	conv, err := a.uc.RenameConversation(c.Request.Context(), c.Param("id"), in.Name)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (a *routes) deleteConversation(c *gin.Context) {
	if err := a.uc.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "Chat deleted successfully"})
}

func (a *routes) listMessages(c *gin.Context) {
	msgs, err := a.uc.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (a *routes) postMessage(c *gin.Context) {
	var in postMessageRequest
	if !bindOptional(c, &in) {
		return
	}
	reply, err := a.uc.PostUserTurn(c.Request.Context(), c.Param("id"), in.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, postMessageResponse{Response: reply})
}

// bindOptional decodes a JSON body when one is present; an empty body is
// treated as {}. Validation of the fields is left to the use case.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorValidation), Message: "invalid_json"})
		return false
	}
	return true
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := errorStatus(err)
	c.AbortWithStatusJSON(status, body)
}

func correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set(correlationHeader, id)
		c.Set(correlationKey, id)
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+correlationHeader)
		h.Set("Access-Control-Expose-Headers", correlationHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if err := c.Errors.Last(); err != nil {
			ev = ev.Err(err.Err)
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("correlationId", c.GetString(correlationKey)).
			Msg("request handled")
	}
}
