package handlers

import (
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/services"
  "github.com/petitionwatch/backend/internal/types"
)

type TrackerHandler struct {
  log            *logger.Logger
  trackerService services.TrackerService
  runService     services.RunHistoryService
}

func NewTrackerHandler(log *logger.Logger, trackerService services.TrackerService, runService services.RunHistoryService) *TrackerHandler {
  return &TrackerHandler{
    log:            log.With("handler", "TrackerHandler"),
    trackerService: trackerService,
    runService:     runService,
  }
}

func (h *TrackerHandler) GetTrending(c *gin.Context) {
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

  petitions, err := h.trackerService.Trending(c.Request.Context(), limit)
  if err != nil {
    h.log.Error("GetTrending failed", "error", err)
    RespondError(c, http.StatusInternalServerError, "load_trending_failed", err)
    return
  }
  RespondOK(c, gin.H{"petitions": petitions})
}

func (h *TrackerHandler) ListRuns(c *gin.Context) {
  kind := types.PollRunKind(c.Query("kind"))
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

  runs, err := h.runService.Recent(c.Request.Context(), kind, limit)
  if err != nil {
    h.log.Error("ListRuns failed", "error", err, "kind", kind)
    RespondError(c, http.StatusInternalServerError, "list_runs_failed", err)
    return
  }
  RespondOK(c, gin.H{"runs": runs})
}
