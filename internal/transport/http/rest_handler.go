package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/questions"
)

const qrSize = 320

// RESTHandler exposes the room service over JSON.
type RESTHandler struct {
	service *app.Service
}

func NewRESTHandler(service *app.Service) *RESTHandler {
	return &RESTHandler{service: service}
}

// RoomSummary is the list view of a room.
type RoomSummary struct {
	ID           string            `json:"id"`
	Status       domain.RoomStatus `json:"status"`
	Participants int               `json:"participants"`
	Questions    int               `json:"questions"`
	Created      time.Time         `json:"created"`
}

type joinRequest struct {
	Name          string `json:"name"`
	ParticipantID string `json:"participantId"`
}

type hostRequest struct {
	HostID string `json:"hostId" binding:"required"`
}

type answerRequest struct {
	ParticipantID  string `json:"participantId" binding:"required"`
	QuestionID     string `json:"questionId"`
	SelectedOption *int   `json:"selectedOption" binding:"required"`
	TimeToAnswer   *int64 `json:"timeToAnswer"`
}

// CreateRoom creates a room from uploaded text, a stored set, or the built-in examples.
// API /api/v1/rooms [POST]
func (h *RESTHandler) CreateRoom(c *gin.Context) {
	var req app.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	r, err := h.service.CreateRoom(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"room":   r,
		"hostId": r.Host,
	})
}

// ListRooms returns a summary of every room.
// API /api/v1/rooms [GET]
func (h *RESTHandler) ListRooms(c *gin.Context) {
	rooms, err := h.service.Rooms(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{
			ID:           r.ID,
			Status:       r.Status,
			Participants: len(r.Participants),
			Questions:    len(r.Questions),
			Created:      r.Created,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

// GetRoom returns the full room state.
// API /api/v1/rooms/:id [GET]
func (h *RESTHandler) GetRoom(c *gin.Context) {
	r, err := h.service.Room(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r})
}

// JoinRoom adds or reconnects a participant.
// API /api/v1/rooms/:id/join [POST]
func (h *RESTHandler) JoinRoom(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	r, p, err := h.service.JoinRoom(c.Request.Context(), c.Param("id"), req.ParticipantID, req.Name)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant": p, "room": r})
}

// StartQuiz is a host-only transition to the first question.
// API /api/v1/rooms/:id/start [POST]
func (h *RESTHandler) StartQuiz(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hostId is required"})
		return
	}
	r, err := h.service.StartQuiz(c.Request.Context(), c.Param("id"), req.HostID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r})
}

// SubmitAnswer scores an answer to the current question.
// API /api/v1/rooms/:id/answers [POST]
func (h *RESTHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participantId and selectedOption are required"})
		return
	}
	sub, err := h.service.SubmitAnswer(c.Request.Context(), c.Param("id"), req.ParticipantID, domain.Response{
		QuestionID:     req.QuestionID,
		SelectedOption: *req.SelectedOption,
		TimeToAnswer:   req.TimeToAnswer,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// NextQuestion is a host-only advance; past the last question the quiz finishes.
// API /api/v1/rooms/:id/next [POST]
func (h *RESTHandler) NextQuestion(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hostId is required"})
		return
	}
	r, err := h.service.NextQuestion(c.Request.Context(), c.Param("id"), req.HostID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": r})
}

// AllAnswered reports whether everyone answered a question (default: the current one).
// API /api/v1/rooms/:id/answered?question=N [GET]
func (h *RESTHandler) AllAnswered(c *gin.Context) {
	ctx := c.Request.Context()
	var index int
	if raw := c.Query("question"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question must be an integer"})
			return
		}
		index = n
	} else {
		r, err := h.service.Room(ctx, c.Param("id"))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		index = r.CurrentQuestion
	}
	all, err := h.service.AllParticipantsAnswered(ctx, c.Param("id"), index)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question": index, "allAnswered": all})
}

// Leaderboard returns the ranked scoreboard.
// API /api/v1/rooms/:id/leaderboard [GET]
func (h *RESTHandler) Leaderboard(c *gin.Context) {
	lb, err := h.service.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

// Results returns the leaderboard plus per-question statistics.
// API /api/v1/rooms/:id/results [GET]
func (h *RESTHandler) Results(c *gin.Context) {
	res, err := h.service.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// QRCode renders a PNG QR code pointing players at the room.
// API /api/v1/rooms/:id/qr [GET]
func (h *RESTHandler) QRCode(c *gin.Context) {
	r, err := h.service.Room(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	url := scheme + "://" + c.Request.Host + "/?room=" + r.ID

	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ValidateQuestions reports, item by item, how an upload would be parsed.
// The body is either raw CSV/JSON text or {"questions": "<text>"}.
// API /api/v1/questions/validate [POST]
func (h *RESTHandler) ValidateQuestions(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	raw := string(body)
	var wrapped struct {
		Questions *string `json:"questions"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Questions != nil {
		raw = *wrapped.Questions
	}

	report := questions.Validate(raw)
	c.JSON(http.StatusOK, gin.H{
		"report":   report,
		"valid":    len(report.Questions()),
		"rejected": len(report.Rejected()),
	})
}
