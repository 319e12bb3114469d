package dlna

import (
	"io"
	"net/http"
	"strings"
)

// buildRouter wires the per-device routes this service exposes. {id}
// resolves to a device.VirtualDevice via the manager, and unknown ids 404
// before the handler runs; the shared SCPD documents are served for any
// id without a lookup.
func (s *Service) buildRouter() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /device/{id}/device.xml", s.withDevice(s.handleDeviceDescription))
	mux.HandleFunc("GET /device/{id}/AVTransport.xml", s.handleSCPD(avTransportSCPD))
	mux.HandleFunc("GET /device/{id}/RenderingControl.xml", s.handleSCPD(renderingControlSCPD))
	mux.HandleFunc("GET /device/{id}/ConnectionManager.xml", s.handleSCPD(connectionManagerSCPD))

	mux.HandleFunc("POST /device/{id}/ctl/{service}", s.withDevice(s.handleSOAPControl))

	mux.HandleFunc("SUBSCRIBE /device/{id}/evt/{service}", s.withDevice(s.handleGENA))
	mux.HandleFunc("UNSUBSCRIBE /device/{id}/evt/{service}", s.withDevice(s.handleGENA))

	return mux
}

// handleSCPD serves a fixed SCPD document regardless of which device id
// is in the path; every device shares the same three service schemas.
func (s *Service) handleSCPD(doc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
		w.Header().Set("Server", serverField)
		_, _ = io.WriteString(w, doc)
	}
}

// withDevice resolves {id} to a VirtualDevice before calling next, 404ing
// unknown ids.
func (s *Service) withDevice(next func(w http.ResponseWriter, r *http.Request, id string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		d := s.manager.GetDeviceByUUID(id)
		if d == nil {
			d = s.manager.GetDevice(id)
		}
		if d == nil {
			http.Error(w, "unknown device", http.StatusNotFound)
			return
		}
		next(w, r, d.DeviceID)
	}
}

func clientIPFromRequest(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
