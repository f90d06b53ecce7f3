package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"adstoryboard/internal/app"
	"adstoryboard/internal/storyboard"
)

const (
	messageScene = "scene"
	messageDone  = "done"
	messageError = "error"
)

// streamRequest is the single message a websocket client sends. Image is a
// data URI.
type streamRequest struct {
	Description string `json:"description"`
	Vibe        string `json:"vibe"`
	Lighting    string `json:"lighting"`
	ContentType string `json:"contentType"`
	Image       string `json:"image"`
}

type streamMessage struct {
	Type  string            `json:"type"`
	ID    string            `json:"id,omitempty"`
	Scene *storyboard.Scene `json:"scene,omitempty"`
	Error string            `json:"error,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	locale := s.service.Config().Generation.Locale
	conn.SetReadLimit(s.service.Config().Server.MaxUploadBytes * 2)

	var req streamRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = writeMessage(conn, streamMessage{Type: messageError, Error: "invalid request"})
		return
	}

	image, err := decodeImage(req.Image)
	if err != nil {
		_ = writeMessage(conn, streamMessage{Type: messageError, Error: storyboard.UserMessage(err, locale)})
		return
	}

	params, err := s.pipeline.Prepare(app.GenerateRequest{
		Description: req.Description,
		Selection:   storyboard.Selection{Vibe: req.Vibe, Lighting: req.Lighting, ContentType: req.ContentType},
		Image:       image,
	})
	if err != nil {
		_ = writeMessage(conn, streamMessage{Type: messageError, Error: storyboard.UserMessage(err, locale)})
		return
	}

	// The client sends nothing after the request, so any read result means
	// it went away. Cancelling stops the remaining backend calls.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	release, err := s.acquire(ctx)
	if err != nil {
		return
	}
	defer release()

	// onScene runs on this goroutine, so writes never overlap.
	result, err := s.pipeline.Run(ctx, params, func(scene storyboard.Scene) {
		if err := writeMessage(conn, streamMessage{Type: messageScene, Scene: &scene}); err != nil {
			cancel()
		}
	})
	if result != nil {
		s.remember(result)
	}
	if ctx.Err() != nil {
		slog.Info("Stream client disconnected", "error", err)
		return
	}
	if err != nil {
		msg := streamMessage{Type: messageError, Error: storyboard.UserMessage(err, locale)}
		if result != nil {
			msg.ID = result.Manifest.ID
		}
		_ = writeMessage(conn, msg)
		return
	}

	_ = writeMessage(conn, streamMessage{Type: messageDone, ID: result.Manifest.ID})
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// decodeImage accepts an empty string so validation reports the missing
// image.
func decodeImage(uri string) ([]byte, error) {
	if uri == "" {
		return nil, nil
	}
	payload, err := storyboard.ParseDataURI(uri)
	if err != nil {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: err.Error()}
	}
	data, err := payload.Bytes()
	if err != nil {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: err.Error()}
	}
	return data, nil
}

func writeMessage(conn *websocket.Conn, msg streamMessage) error {
	if err := conn.WriteJSON(msg); err != nil {
		slog.Debug("Failed to write websocket message", "type", msg.Type, "error", err)
		return err
	}
	return nil
}
