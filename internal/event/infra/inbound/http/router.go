package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterEventRoutes registra las rutas HTTP del dominio de eventos.
func RegisterEventRoutes(r *gin.Engine, handler *EventHandler) {
	// "" en lugar de "/" evita la redirección por barra final
	events := r.Group("/events")
	{
		events.POST("", handler.CreateEvent)                // Ingerir imagen o pulsación
		events.GET("", handler.ListEvents)                  // Listar metadatos recientes
		events.GET("/:id", handler.GetEvent)                // Evento completo
		events.GET("/:id/payload", handler.GetEventPayload) // Bytes crudos de la imagen
	}
}

// RegisterLegacyRoutes registra las rutas heredadas (/ping, /upload, /images).
func RegisterLegacyRoutes(r *gin.Engine, handler *LegacyHandler) {
	r.POST("/ping", handler.Ping)
	r.POST("/upload", handler.Upload)
	r.GET("/images", handler.ListImages)
	r.GET("/images/id/:id", handler.GetImage)
}

// RegisterHealthRoute expone el estado del servicio, los visores en vivo y los
// sinks del servidor por separado.
func RegisterHealthRoute(r *gin.Engine, viewers, sinks func() int) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"liveSubscribers": viewers(),
			"sinks":           sinks(),
		})
	})
}

// CORS permisivo: los visores web se sirven desde cualquier origen.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
