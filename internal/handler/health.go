package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health handles GET /health. Provider sections report token presence as
// booleans; token values never appear in the payload.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.Service.Name,
		"version": h.cfg.Service.Version,
		"providers": gin.H{
			"direct": gin.H{
				"token_configured": h.cfg.Direct.Token != "",
				"client_login":     h.cfg.Direct.ClientLogin,
				"sandbox":          h.cfg.Direct.Sandbox,
				"writes_enabled":   h.cfg.Direct.AllowMutations,
			},
			"metrica": gin.H{
				"token_configured": h.cfg.Metrica.Token != "",
				"counter_id":       h.cfg.Metrica.CounterID,
			},
		},
		"cache": gin.H{
			"enabled": !h.cfg.Cache.Disabled,
			"backend": h.cfg.Cache.Backend,
		},
		"accounts": len(h.registry.Profiles()),
	})
}

// HealthHead handles HEAD /health for lightweight liveness probes.
func (h *Handler) HealthHead(c *gin.Context) {
	c.Status(http.StatusOK)
}
