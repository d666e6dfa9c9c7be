package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services/framer"
	"github.com/upb/llm-bridge/utils"
)

// ModelCatalog lists the routable models
type ModelCatalog interface {
	Models() []models.ModelSpec
}

// ModelsHandler serves the OpenAI model listing
type ModelsHandler struct {
	catalog ModelCatalog
	logger  *zap.Logger
	now     func() time.Time
}

// NewModelsHandler creates a new ModelsHandler
func NewModelsHandler(catalog ModelCatalog, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{catalog: catalog, logger: logger, now: time.Now}
}

// HandleListModels handles GET /v1/models
func (h *ModelsHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	list := framer.NewModelList(h.catalog.Models(), h.now())
	if err := utils.WriteOK(w, list); err != nil {
		h.logger.Error("failed to write model list", zap.Error(err))
	}
}
