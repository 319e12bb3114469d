package dlna

import (
	_ "embed"
	"fmt"
	"net/http"
	"text/template"
	"time"
)

//go:embed templates/device_description.xml
var deviceDescriptionSource string

//go:embed templates/avtransport_scpd.xml
var avTransportSCPD string

//go:embed templates/renderingcontrol_scpd.xml
var renderingControlSCPD string

//go:embed templates/connectionmanager_scpd.xml
var connectionManagerSCPD string

// templateSet holds the parsed device-description template, the one
// document in this package whose content varies per device (SCPD docs
// are identical for every device and served as plain strings above).
type templateSet struct {
	device *template.Template
}

func loadTemplates() (*templateSet, error) {
	tmpl, err := template.New("device_description.xml").Parse(deviceDescriptionSource)
	if err != nil {
		return nil, fmt.Errorf("parse device description template: %w", err)
	}
	return &templateSet{device: tmpl}, nil
}

type deviceDescriptionData struct {
	UDN          string
	FriendlyName string
	Manufacturer string
	ModelName    string
	BaseURL      string
	DeviceID     string
}

// handleDeviceDescription renders the per-device root description
// document SSDP's LOCATION header points at.
func (s *Service) handleDeviceDescription(w http.ResponseWriter, r *http.Request, deviceID string) {
	d := s.manager.GetDevice(deviceID)
	if d == nil {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	data := deviceDescriptionData{
		UDN:          d.DLNAUUID,
		FriendlyName: fmt.Sprintf("%s (%s)", d.Name, s.cfg.FriendlyName),
		Manufacturer: "AirBridge",
		ModelName:    "AirBridge Virtual Renderer",
		BaseURL:      fmt.Sprintf("http://%s:%d", s.cfg.HostIP, s.cfg.HTTPPort),
		DeviceID:     deviceID,
	}

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.Header().Set("Server", serverField)
	w.Header().Set("EXT", "")
	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))

	if err := s.templates.device.Execute(w, data); err != nil {
		s.logger.Error("render device description failed", "error", err, "device_id", deviceID)
	}
}
