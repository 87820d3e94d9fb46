package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	handler *Handler
}

func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

func (r *Router) RegisterRoutes(engine *gin.Engine, auth gin.HandlerFunc, gatherer prometheus.Gatherer) {
	engine.GET("/healthz", r.handler.health)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	engine.POST("/poll", auth, r.handler.poll)

	api := engine.Group("/api", auth)
	api.GET("/watchers/:tenant", r.handler.watcherState)
	api.GET("/outbox", r.handler.listOutbox)
}
