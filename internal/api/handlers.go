package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthouse-core/internal/audit"
	"github.com/nerrad567/smarthouse-core/internal/house"
	"github.com/nerrad567/smarthouse-core/internal/powerswitch"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// switchCommandTimeout bounds a proxied switch command.
const switchCommandTimeout = 5 * time.Second

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK

	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

// handleReport writes the house report as plain text.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.house.CreateReport(r.Context(), s.provider)
	if err != nil {
		if !errors.Is(err, house.ErrDeviceNotFound) {
			s.logger.Error("creating report", "error", err)
		}
		writeDomainError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // best-effort write
	w.Write([]byte(report))
}

type roomsResponse struct {
	House string             `json:"house"`
	Rooms []house.RoomLayout `json:"rooms"`
	Count int                `json:"count"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.house.Layout()
	writeJSON(w, http.StatusOK, roomsResponse{House: s.house.Name(), Rooms: rooms, Count: len(rooms)})
}

func (s *Server) handleListRoomDevices(w http.ResponseWriter, r *http.Request) {
	room, err := url.PathUnescape(chi.URLParam(r, "room"))
	if err != nil {
		writeBadRequest(w, r, "invalid room name")
		return
	}

	devices, err := s.house.Devices(room)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, house.RoomLayout{Name: room, Devices: devices})
}

type switchCommandRequest struct {
	Command string `json:"command"`
}

type switchCommandResponse struct {
	DeviceID string   `json:"device_id"`
	Command  string   `json:"command"`
	Response string   `json:"response"`
	Power    *float64 `json:"power,omitempty"`
}

func (s *Server) handleSwitchCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sw, ok := s.switches[id]
	if !ok {
		writeNotFound(w, r, "switch not found: "+id)
		return
	}

	var req switchCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	cmd, err := powerswitch.ParseCommandName(req.Command)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), switchCommandTimeout)
	defer cancel()

	resp, err := sw.Command(ctx, cmd)
	if err != nil {
		s.logger.Warn("switch command failed", "device_id", id, "command", cmd.String(), "error", err)
		s.recordCommand(r.Context(), &audit.Entry{DeviceID: id, Command: req.Command, Source: audit.SourceAPI, Error: err.Error()})
		writeDomainError(w, r, err, "switch unreachable")
		return
	}
	s.recordCommand(r.Context(), &audit.Entry{DeviceID: id, Command: req.Command, Response: resp.String(), Source: audit.SourceAPI})

	out := switchCommandResponse{DeviceID: id, Command: req.Command, Response: resp.Kind.String()}
	if resp.Kind == powerswitch.ResponsePower {
		out.Power = &resp.Power
	}
	writeJSON(w, http.StatusOK, out)
}

// recordCommand appends entry to the command log, if one is configured.
// A failed write is logged; the command itself has already been sent.
func (s *Server) recordCommand(ctx context.Context, entry *audit.Entry) {
	if s.commandLog == nil {
		return
	}
	if err := s.commandLog.Record(ctx, entry); err != nil {
		s.logger.Error("recording switch command failed", "device_id", entry.DeviceID, "error", err)
	}
}

func (s *Server) handleListSwitchCommands(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.switches[id]; !ok {
		writeNotFound(w, r, "switch not found: "+id)
		return
	}

	filter := audit.Filter{DeviceID: id}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, r, "invalid "+name+": "+v)
			return
		}
		*dst = n
	}

	result, err := s.commandLog.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing switch commands failed", "device_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, "failed to list switch commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
