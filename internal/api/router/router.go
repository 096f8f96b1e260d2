package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/image-distributor/internal/api/handlers/task"
)

func Setup(h *task.Handler) *ginext.Engine {
	r := ginext.New()

	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	api := r.Group("/api")

	api.POST("/tasks", h.Submit)         // upload an image and enqueue its task
	api.GET("/tasks/:id", h.Get)         // ledger row of a task
	api.GET("/results", h.Results)       // completion notices
	api.GET("/operations", h.Operations) // supported operations

	return r
}
