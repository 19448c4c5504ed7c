package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campbelljlowman/auxparty-api/session"
	"github.com/campbelljlowman/auxparty-api/streaming"
	"github.com/campbelljlowman/auxparty-api/voter"
)

const defaultPlayedTracksLimit = 50

type addToQueueRequest struct {
	AddedBy string `json:"addedBy" binding:"required"`
	TrackID string `json:"trackId" binding:"required"`
	Force   bool   `json:"force"`
}

type removeFromQueueRequest struct {
	TrackID string `json:"trackId" binding:"required"`
}

type reorderQueueRequest struct {
	Order []string `json:"order" binding:"required"`
}

type voteRequest struct {
	VoterID string `json:"voterId" binding:"required"`
	TrackID string `json:"trackId" binding:"required"`
}

func (h *handler) getQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.GetQueueState())
}

func (h *handler) addToQueue(c *gin.Context) {
	var request addToQueueRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.session.AddToQueue(c.Request.Context(), request.AddedBy, request.TrackID, request.Force); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.GetQueueState())
}

func (h *handler) removeFromQueue(c *gin.Context) {
	var request removeFromQueueRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.session.RemoveFromQueue(request.TrackID)
	c.JSON(http.StatusOK, h.session.GetQueueState())
}

func (h *handler) reorderQueue(c *gin.Context) {
	var request reorderQueueRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.session.ReorderQueue(request.Order)
	c.JSON(http.StatusOK, h.session.GetQueueState())
}

func (h *handler) vote(c *gin.Context) {
	kind, err := voter.ParseVoteKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	var request voteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	votes, err := h.session.Vote(kind, request.TrackID, request.VoterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

func (h *handler) play(c *gin.Context) {
	h.transition(c, h.session.Skip)
}

func (h *handler) previous(c *gin.Context) {
	h.transition(c, h.session.Previous)
}

func (h *handler) pause(c *gin.Context) {
	h.transition(c, h.session.TogglePause)
}

func (h *handler) transition(c *gin.Context, do func(ctx context.Context) error) {
	if err := do(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.GetQueueState())
}

func (h *handler) search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	tracks, err := h.session.Search(c.Request.Context(), query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracks)
}

func (h *handler) getHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.GetHistory())
}

func (h *handler) getPlayedTracks(c *gin.Context) {
	if h.playHistory == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "play log is not configured"})
		return
	}

	limit := defaultPlayedTracksLimit
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	playedTracks, err := h.playHistory.RecentlyPlayed(c.Request.Context(), h.session.ID(), limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error reading play log"})
		return
	}
	c.JSON(http.StatusOK, playedTracks)
}

func (h *handler) getSessionMetrics(c *gin.Context) {
	response := gin.H{"active": h.session.Metrics()}

	if h.playHistory != nil {
		completed, err := h.playHistory.GetCompletedSessionMetrics(c.Request.Context())
		if err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error reading session metrics"})
			return
		}
		response["completed"] = completed
	}
	c.JSON(http.StatusOK, response)
}

func writeError(c *gin.Context, err error) {
	c.Error(err)

	var conflict *session.ConflictError
	var upstream *session.UpstreamError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "canForce": true, "conflict": conflict.Location})
	case errors.Is(err, streaming.ErrTrackNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &upstream):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrNoHistory), errors.Is(err, session.ErrNothingPlaying), errors.Is(err, session.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
