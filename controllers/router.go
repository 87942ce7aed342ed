package controllers

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/Seungwon-Robin/Chatbot/web"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the chat page, health check and chat endpoint.
func NewRouter(environment string, cc *ChatController) (*gin.Engine, error) {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(RequestID())

	tmpl, err := template.ParseFS(web.FS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static files: %w", err)
	}
	router.StaticFS("/static", http.FS(static))

	router.GET("/", cc.Index)
	router.GET("/health", cc.Health)
	router.POST("/chat", cc.Chat)

	return router, nil
}
