package handlers

import (
  "fmt"
  "net/http"
  "strconv"
  "github.com/gin-gonic/gin"
  "github.com/petitionwatch/backend/internal/logger"
  "github.com/petitionwatch/backend/internal/services"
  "github.com/petitionwatch/backend/internal/types"
)

type PetitionHandler struct {
  log             *logger.Logger
  petitionService services.PetitionService
}

func NewPetitionHandler(log *logger.Logger, petitionService services.PetitionService) *PetitionHandler {
  return &PetitionHandler{
    log:             log.With("handler", "PetitionHandler"),
    petitionService: petitionService,
  }
}

func (h *PetitionHandler) GetPetition(c *gin.Context) {
  id, err := strconv.ParseInt(c.Param("id"), 10, 64)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_petition_id", err)
    return
  }

  petition, err := h.petitionService.GetPetition(c.Request.Context(), id)
  if err != nil {
    h.log.Error("GetPetition failed", "error", err, "id", id)
    RespondError(c, http.StatusInternalServerError, "load_petition_failed", err)
    return
  }
  if petition == nil {
    RespondError(c, http.StatusNotFound, "petition_not_found", fmt.Errorf("Petition ID: %d, not found", id))
    return
  }
  RespondOK(c, gin.H{"petition": petition})
}

func (h *PetitionHandler) ListPetitions(c *gin.Context) {
  state := c.DefaultQuery("state", "all")
  page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
  perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

  var archived *bool
  if raw, ok := c.GetQuery("archived"); ok {
    parsed, err := strconv.ParseBool(raw)
    if err != nil {
      RespondError(c, http.StatusBadRequest, "invalid_archived_param", err)
      return
    }
    archived = &parsed
  }

  petitions, err := h.petitionService.ListPetitions(c.Request.Context(), state, archived, page, perPage)
  if err != nil {
    h.log.Error("ListPetitions failed", "error", err, "state", state)
    RespondError(c, http.StatusInternalServerError, "list_petitions_failed", err)
    return
  }
  RespondOK(c, gin.H{"petitions": petitions, "page": page, "per_page": perPage})
}

func (h *PetitionHandler) GetPetitionBreakdown(c *gin.Context) {
  id, err := strconv.ParseInt(c.Param("id"), 10, 64)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_petition_id", err)
    return
  }
  geography := types.Geography(c.Param("geography"))
  if !geography.Valid() {
    RespondError(c, http.StatusBadRequest, "invalid_geography", fmt.Errorf("unknown geography: %q", geography))
    return
  }

  petition, err := h.petitionService.GetPetition(c.Request.Context(), id)
  if err != nil {
    h.log.Error("GetPetitionBreakdown failed", "error", err, "id", id)
    RespondError(c, http.StatusInternalServerError, "load_petition_failed", err)
    return
  }
  if petition == nil {
    RespondError(c, http.StatusNotFound, "petition_not_found", fmt.Errorf("Petition ID: %d, not found", id))
    return
  }

  breakdown, err := h.petitionService.PetitionBreakdown(c.Request.Context(), id, geography)
  if err != nil {
    h.log.Error("GetPetitionBreakdown failed", "error", err, "id", id, "geography", geography)
    RespondError(c, http.StatusInternalServerError, "load_breakdown_failed", err)
    return
  }
  RespondOK(c, gin.H{"breakdown": breakdown})
}

func (h *PetitionHandler) GetPetitionRecords(c *gin.Context) {
  id, err := strconv.ParseInt(c.Param("id"), 10, 64)
  if err != nil {
    RespondError(c, http.StatusBadRequest, "invalid_petition_id", err)
    return
  }
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

  petition, err := h.petitionService.GetPetition(c.Request.Context(), id)
  if err != nil {
    h.log.Error("GetPetitionRecords failed", "error", err, "id", id)
    RespondError(c, http.StatusInternalServerError, "load_petition_failed", err)
    return
  }
  if petition == nil {
    RespondError(c, http.StatusNotFound, "petition_not_found", fmt.Errorf("Petition ID: %d, not found", id))
    return
  }

  records, err := h.petitionService.PetitionRecords(c.Request.Context(), id, limit)
  if err != nil {
    h.log.Error("GetPetitionRecords failed", "error", err, "id", id)
    RespondError(c, http.StatusInternalServerError, "load_records_failed", err)
    return
  }
  RespondOK(c, gin.H{"petition_id": id, "records": records})
}
