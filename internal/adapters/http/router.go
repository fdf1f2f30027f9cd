// Package http exposes the control and diagnostics surface: call
// operations over REST and the task-accounting report.
package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/manager"
	"github.com/dkeye/voicelink/internal/taskstat"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, m *manager.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Plain-text task counter snapshot; same shape taskstat.Print
	// writes to stdout.
	r.GET("/stats", func(c *gin.Context) {
		c.String(http.StatusOK, taskstat.Report())
	})

	api := r.Group("/api")

	api.GET("/calls", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"calls": m.Snapshot()})
	})

	api.POST("/calls/:guild/join", func(c *gin.Context) {
		guild, ok := guildParam(c)
		if !ok {
			return
		}
		channel, err := domain.ParseChannelID(c.Query("channel"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
			return
		}
		if err := m.Join(ctx, guild, channel); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/calls/:guild/leave", func(c *gin.Context) {
		guild, ok := guildParam(c)
		if !ok {
			return
		}
		if err := m.Leave(ctx, guild); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/calls/:guild/mute", func(c *gin.Context) {
		guild, ok := guildParam(c)
		if !ok {
			return
		}
		mute := c.DefaultQuery("state", "true") == "true"
		if err := m.Mute(ctx, guild, mute); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/calls/:guild/deafen", func(c *gin.Context) {
		guild, ok := guildParam(c)
		if !ok {
			return
		}
		deaf := c.DefaultQuery("state", "true") == "true"
		if err := m.Deafen(ctx, guild, deaf); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r
}

func guildParam(c *gin.Context) (domain.GuildID, bool) {
	guild, err := domain.ParseGuildID(c.Param("guild"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid guild"})
		return 0, false
	}
	return guild, true
}
