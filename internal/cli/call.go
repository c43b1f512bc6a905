package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/media"
	"github.com/AmanBang/meshcall/internal/rtc"
	"github.com/AmanBang/meshcall/internal/signal"
	"github.com/AmanBang/meshcall/internal/ui"
)

const httpTimeout = 10 * time.Second

// relayRoom is the room shape returned by the relay's room API.
type relayRoom struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// roomLookup matches GET /api/rooms/:roomId.
type roomLookup struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// createRoom asks the relay for a fresh room.
func createRoom(cfg *config.Config) (relayRoom, error) {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Post(cfg.RoomsURL(), "application/json", bytes.NewReader([]byte("{}")))
	if err != nil {
		return relayRoom{}, fmt.Errorf("reaching relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return relayRoom{}, fmt.Errorf("relay refused room creation (status %d)", resp.StatusCode)
	}

	var room relayRoom
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return relayRoom{}, fmt.Errorf("parsing relay response: %w", err)
	}
	return room, nil
}

// lookupRoom resolves a room ID or join code against the relay.
func lookupRoom(cfg *config.Config, idOrCode string) (relayRoom, error) {
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Get(cfg.RoomsURL() + "/" + idOrCode)
	if err != nil {
		return relayRoom{}, fmt.Errorf("reaching relay: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return relayRoom{}, fmt.Errorf("room %q not found", idOrCode)
	default:
		return relayRoom{}, fmt.Errorf("relay lookup failed (status %d)", resp.StatusCode)
	}

	var room roomLookup
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return relayRoom{}, fmt.Errorf("parsing relay response: %w", err)
	}
	return relayRoom{RoomID: room.ID, Code: room.Code}, nil
}

// runCall joins the room's call and blocks until the user leaves or the
// session dies.
func runCall(cfg *config.Config, room relayRoom, audioOnly bool) error {
	selfID := uuid.New().String()
	name := cfg.DisplayName
	if name == "" {
		name = "guest-" + selfID[:8]
	}

	self := signal.Participant{
		ID:           selfID,
		Name:         name,
		VideoEnabled: !audioOnly,
		Online:       true,
	}

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	client, err := signal.DialRelay(cfg.WebSocketURL(room.RoomID), self, slog.Default())
	if err != nil {
		stopSpinner()
		return fmt.Errorf("connecting to relay: %w", err)
	}
	defer client.Close()

	session := rtc.NewSession(rtc.Options{
		SelfID:    selfID,
		Name:      name,
		RoomID:    room.RoomID,
		Channel:   client,
		Presence:  client,
		Transport: rtc.NewPionTransport(cfg),
		Capturer:  media.NewSyntheticCapturer(),
		Capture:   media.CaptureRequest{Audio: true, Video: !audioOnly},
		MaxPeers:  cfg.MaxPeers,
		Logger:    slog.Default(),
	})

	if err := session.Start(context.Background()); err != nil {
		stopSpinner()
		if errors.Is(err, rtc.ErrMediaUnavailable) {
			return fmt.Errorf("local media unavailable: %w", err)
		}
		return err
	}
	stopSpinner()
	ui.PrintSuccessf("Joined room %s as %s", room.Code, name)

	start := time.Now()
	model := ui.NewCallModel(session, room.RoomID, room.Code, name)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		session.Leave()
		<-session.Done()
		return fmt.Errorf("running call view: %w", err)
	}

	session.Leave()
	<-session.Done()

	fmt.Println()
	ui.RenderCallSummary(ui.IconCall+" Call Summary", ui.CallSummary{
		RoomID:   room.RoomID,
		Code:     room.Code,
		Duration: time.Since(start),
		Peers:    model.PeersSeen(),
	})
	return nil
}
