package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type dependencyCheck struct {
	name  string
	check func(ctx context.Context) error
}

type HealthHandler struct {
	checks []dependencyCheck
}

func NewHealthHandler(dbPool *pgxpool.Pool, redisClient *redis.Client, amqpConn *amqp.Connection) *HealthHandler {
	return &HealthHandler{checks: []dependencyCheck{
		{"postgres", dbPool.Ping},
		{"redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{"rabbitmq", func(context.Context) error {
			if amqpConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}},
	}}
}

// Health is the public liveness probe used by the web client.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Backend is running"})
}

func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{"status": "ok"}
	for _, dep := range h.checks {
		if err := dep.check(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", dep.name: "unavailable"})
			return
		}
		body[dep.name] = "connected"
	}
	c.JSON(http.StatusOK, body)
}
