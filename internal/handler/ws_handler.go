package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/proctorhq/examhall-backend/internal/middleware"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/service"
	"github.com/proctorhq/examhall-backend/internal/session"
	ws "github.com/proctorhq/examhall-backend/internal/websocket"
)

// WSHandler serves the live exam stream: autosave, flags, navigation,
// violations, and submit over a single WebSocket, with server-pushed warning
// and expiry events.
type WSHandler struct {
	attemptService *service.AttemptService
	upgrader       websocket.Upgrader
	log            zerolog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, allowedOrigins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     buildOriginChecker(allowedOrigins),
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

func buildOriginChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := set[origin]
		return ok
	}
}

// HandleExamStream godoc
// GET /ws/v1/candidate/exams/:exam_id/stream?token=...
func (h *WSHandler) HandleExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	// Resolve the live session before upgrading so auth and attempt errors
	// still come back as proper HTTP responses.
	sess, err := h.attemptService.LiveSession(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failAttemptError(c, err)
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	log := h.log.With().
		Int("candidate_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	log.Info().Msg("exam stream connected")

	done := make(chan struct{})
	defer close(done)
	go h.pushEvents(conn, sess, done, log)

	h.readLoop(c, conn, sess, examID, claims.UserID, log)
	log.Info().Msg("exam stream disconnected")
}

// pushEvents forwards monitor warnings to the client and announces the
// timeout auto-submit. It exits when the read loop returns or the warning
// stream closes.
func (h *WSHandler) pushEvents(conn *ws.Conn, sess *session.Session, done <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	warnings := sess.Monitor().Warnings()
	for {
		select {
		case v, open := <-warnings:
			if !open {
				return
			}
			if err := conn.WriteTyped(ws.WarningResponse{
				Event: ws.EventWarning,
				Kind:  string(v.Kind),
				Count: v.Seq,
			}); err != nil {
				return
			}
		case <-ticker.C:
			if sess.State() != session.StateSubmitted {
				continue
			}
			if res := sess.Result(); res != nil && res.AutoSubmitted {
				conn.WriteTyped(ws.ExpiredResponse{Event: ws.EventExpired})
				conn.WriteTyped(gradedResponse(res))
			}
			return
		case <-done:
			return
		}
	}
}

func (h *WSHandler) readLoop(c *gin.Context, conn *ws.Conn, sess *session.Session, examID uuid.UUID, candidateID int, log zerolog.Logger) {
	for {
		var req ws.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("read error")
			}
			return
		}

		ctx := c.Request.Context()
		switch req.Action {
		case ws.ActionAutosave:
			if err := h.attemptService.RecordAnswer(ctx, examID, candidateID, req.QID, req.Answer); err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, QID: req.QID})

		case ws.ActionFlag:
			flagged, err := h.attemptService.ToggleFlag(ctx, examID, candidateID, req.QID)
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteTyped(ws.FlaggedResponse{Event: ws.EventFlagged, QID: req.QID, Flagged: flagged})

		case ws.ActionNavigate:
			if req.Index == nil {
				conn.WriteError("index required")
				continue
			}
			if err := h.attemptService.Navigate(ctx, examID, candidateID, *req.Index); err != nil {
				conn.WriteError(err.Error())
			}

		case ws.ActionViolation:
			// The warning event itself arrives through the monitor
			// stream; no direct reply here.
			if _, err := h.attemptService.RecordViolation(ctx, examID, candidateID, session.ViolationKind(req.Kind)); err != nil {
				conn.WriteError(err.Error())
			}

		case ws.ActionAck:
			if err := h.attemptService.AcknowledgeWarning(ctx, examID, candidateID); err != nil {
				conn.WriteError(err.Error())
			}

		case ws.ActionSubmit:
			res, err := h.attemptService.Finalize(ctx, examID, candidateID, &model.FinalizeRequest{Reason: req.Reason})
			if err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteTyped(gradedResponse(res))
			return

		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{
				Event:            ws.EventPong,
				RemainingSeconds: sess.RemainingSeconds(),
			})

		default:
			conn.WriteError("unknown action")
		}
	}
}

func gradedResponse(res *session.Result) ws.GradedResponse {
	return ws.GradedResponse{
		Event:            ws.EventGraded,
		Score:            res.Score,
		TotalMarks:       res.TotalMarks,
		TimeTakenSeconds: res.TimeTakenSeconds,
		AutoSubmitted:    res.AutoSubmitted,
		SubmittedAt:      res.SubmittedAt.Format(time.RFC3339),
	}
}
