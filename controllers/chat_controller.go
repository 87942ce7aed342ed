package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Seungwon-Robin/Chatbot/models"
	"github.com/Seungwon-Robin/Chatbot/services"

	"github.com/gin-gonic/gin"
)

const (
	msgEmptyMessage   = "Message cannot be empty"
	msgInvalidRequest = "Invalid request"
	msgGenerationFail = "Sorry, an error occurred while generating a response."
)

// ChatService is the one operation the HTTP layer needs from the chatbot.
type ChatService interface {
	GenerateResponse(ctx context.Context, query string) (string, error)
	Status() services.Status
}

type ChatController struct {
	chatbot ChatService
	title   string
}

func NewChatController(chatbot ChatService, title string) *ChatController {
	return &ChatController{chatbot: chatbot, title: title}
}

// Index renders the chat page.
func (cc *ChatController) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"title": cc.title})
}

func (cc *ChatController) Health(c *gin.Context) {
	status := cc.chatbot.Status()
	code := http.StatusOK
	health := "healthy"
	if status.State != services.StateReady.String() {
		code = http.StatusServiceUnavailable
		health = "starting"
	}
	c.JSON(code, gin.H{
		"status":  health,
		"service": "music-chatbot",
		"chatbot": status,
	})
}

// Chat answers {"message": ...} with {"response": ...}. Internal errors are
// logged and replaced by a generic message.
func (cc *ChatController) Chat(c *gin.Context) {
	startTime := time.Now()
	requestID := c.GetString(RequestIDKey)

	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[%s] Invalid chat request: %v", requestID, err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgInvalidRequest})
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgEmptyMessage})
		return
	}

	log.Printf("[%s] Chat query: %q", requestID, message)

	answer, err := cc.chatbot.GenerateResponse(c.Request.Context(), message)
	if err != nil {
		if errors.Is(err, services.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msgEmptyMessage})
			return
		}
		log.Printf("[%s] Error during chat: %v", requestID, err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: msgGenerationFail})
		return
	}

	log.Printf("[%s] Chat answered in %v", requestID, time.Since(startTime))
	c.JSON(http.StatusOK, models.ChatResponse{Response: answer})
}
