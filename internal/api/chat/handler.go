package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmrouter/llmrouter/internal/domain"
	"github.com/llmrouter/llmrouter/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
}

// Chat handles a non-streaming chat message
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), &req)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ChatStream handles a streaming chat message (SSE)
func (h *Handler) ChatStream(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handle, err := h.chatService.ChatStream(c.Request.Context(), &req)
	if err != nil {
		h.writeChatError(c, err)
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Tell the caller up front which backend is serving this stream.
	writeSSE(c.Writer, "backend", fmt.Sprintf(`{"backend":%q,"model":%q}`, handle.Backend, handle.Model))
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		delta, ok := <-handle.Deltas
		if !ok {
			return false // End stream
		}
		event := "delta"
		if delta.Done {
			event = "done"
		}
		data, _ := json.Marshal(delta)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(data))
		return true
	})
}

// writeChatError surfaces the error text plus remediation steps. A
// busy adapter is a client-side conflict, not a server failure.
func (h *Handler) writeChatError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	hint := ""

	var unreachable *domain.UnreachableError
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrBusy):
		status = http.StatusConflict
		hint = "wait for the current response to finish"
	case errors.Is(err, domain.ErrNotConfigured):
		status = http.StatusBadRequest
		hint = "set the backend endpoint and API key in settings"
	case errors.As(err, &unreachable):
		status = http.StatusBadGateway
		hint = unreachable.Hint
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
		hint = "check the backend credentials and model name"
	}

	c.JSON(status, gin.H{"error": err.Error(), "hint": hint})
}

func writeSSE(w io.Writer, eventType, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
}
