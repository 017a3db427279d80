package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID     string `json:"questionId"`
	SelectedOption *int   `json:"selectedOption"`
	TimeToAnswer   *int64 `json:"timeToAnswer"`
}

type answerResult struct {
	QuestionID  string `json:"questionId"`
	Correct     bool   `json:"correct"`
	Awarded     int    `json:"awarded"`
	TotalScore  int    `json:"totalScore"`
	AllAnswered bool   `json:"allAnswered"`
}

type joinedPayload struct {
	RoomID      string              `json:"roomId"`
	Host        bool                `json:"host"`
	Participant *domain.Participant `json:"participant,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the room use cases.
//
// Query parameters: roomId (required), participantId and name. A participantId equal
// to the room's host ID opens a host connection that may send start/next; anyone else
// joins (or rejoins) as a participant and is disconnected, score intact, on close.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := app.NormalizeCode(r.URL.Query().Get("roomId"))
	participantID := r.URL.Query().Get("participantId")
	displayName := r.URL.Query().Get("name")
	if roomID == "" {
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	}

	current, err := h.service.Room(r.Context(), roomID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	isHost := participantID != "" && participantID == current.Host

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The request context ends with the handler; background work outlives it.
	ctx := context.WithoutCancel(r.Context())

	joined := joinedPayload{RoomID: roomID, Host: isHost}
	if !isHost {
		_, p, err := h.service.JoinRoom(ctx, roomID, participantID, displayName)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		participantID = p.ID
		joined.Participant = &p
		defer func() {
			if err := h.service.Disconnect(ctx, roomID, participantID); err != nil {
				log.Printf("ws disconnect %s from %s: %v", participantID, roomID, err)
			}
		}()
	}

	updates, cancel, err := h.service.Subscribe(ctx, roomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// Unblocks the read loop below.
				_ = conn.Close()
				return
			}
		}
	}()

	enqueue(send, writerDone, outboundMessage[any]{Type: "joined", Payload: joined})

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				msgType := "room"
				if update.Type == domain.EventSnapshot {
					msgType = "snapshot"
				}
				select {
				case send <- outboundMessage[any]{Type: msgType, Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply, ok := h.handle(ctx, roomID, participantID, isHost, inbound)
		if ok && !enqueue(send, writerDone, reply) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle runs one inbound command and returns the reply, if any. start and next
// only reply on error; their effect arrives as a room event.
func (h *WSHandler) handle(ctx context.Context, roomID, participantID string, isHost bool, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "answer":
		if isHost {
			return errorMessage("the host cannot answer"), true
		}
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SelectedOption == nil {
			return errorMessage("invalid answer payload"), true
		}
		sub, err := h.service.SubmitAnswer(ctx, roomID, participantID, domain.Response{
			QuestionID:     payload.QuestionID,
			SelectedOption: *payload.SelectedOption,
			TimeToAnswer:   payload.TimeToAnswer,
		})
		if err != nil {
			return errorMessage(err.Error()), true
		}
		total := 0
		if p := sub.Room.Participant(participantID); p != nil {
			total = p.Score
		}
		return outboundMessage[any]{Type: "answerResult", Payload: answerResult{
			QuestionID:  sub.Record.QuestionID,
			Correct:     sub.Correct,
			Awarded:     sub.Score,
			TotalScore:  total,
			AllAnswered: sub.AllAnswered,
		}}, true
	case "start":
		if _, err := h.service.StartQuiz(ctx, roomID, participantID); err != nil {
			return errorMessage(err.Error()), true
		}
		return outboundMessage[any]{}, false
	case "next":
		if _, err := h.service.NextQuestion(ctx, roomID, participantID); err != nil {
			return errorMessage(err.Error()), true
		}
		return outboundMessage[any]{}, false
	default:
		return errorMessage("unsupported message type"), true
	}
}

// enqueue hands msg to the writer, reporting false once the writer has stopped.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
