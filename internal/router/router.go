package router

import (
	"Canvas-Auto-Quiz-Backend/internal/api"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(quizHandler *api.QuizHandler, allowedOrigins []string) *gin.Engine {
	r := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins
	config.AllowHeaders = append(config.AllowHeaders, "Content-Type")
	r.Use(cors.New(config))

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/solve", quizHandler.SolveHandler)
		apiV1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "UP"})
		})
	}

	return r
}
