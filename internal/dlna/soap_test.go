package dlna

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anacrolix/dms/upnp"
)

func TestDecodeActionArgs_FlattensChildElements(t *testing.T) {
	body := []byte(`<u:SetAVTransportURI xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><InstanceID>0</InstanceID><CurrentURI>http://x/track.flac</CurrentURI><CurrentURIMetaData></CurrentURIMetaData></u:SetAVTransportURI>`)
	args, err := decodeActionArgs(body)
	require.NoError(t, err)
	assert.Equal(t, "0", args["InstanceID"])
	assert.Equal(t, "http://x/track.flac", args["CurrentURI"])
	assert.Equal(t, "", args["CurrentURIMetaData"])
}

func TestActionTableFor_UnknownServiceReturnsNil(t *testing.T) {
	assert.Nil(t, actionTableFor("urn:schemas-upnp-org:service:ScheduledRecording:1"))
	assert.NotNil(t, actionTableFor(avTransportType))
	assert.NotNil(t, actionTableFor(renderingControlType))
	assert.NotNil(t, actionTableFor(connectionManagerType))
}

func TestSoapEnvelope_WrapsActionResponse(t *testing.T) {
	body := soapEnvelope(upnp.SoapAction{Type: avTransportType, Action: "Stop"}, map[string]string{})
	assert.Contains(t, string(body), "<u:StopResponse")
	assert.Contains(t, string(body), "s:Envelope")
}

func TestSoapFault_WrapsUPnPError(t *testing.T) {
	body := soapFault(upnp.Errorf(701, "transition not available"))
	assert.Contains(t, string(body), "UPnPError")
}

func TestSoapRespond_UnknownServiceIsPermissive200(t *testing.T) {
	s := &Service{}
	sa := upnp.SoapAction{Type: "urn:schemas-upnp-org:service:ScheduledRecording:1", Action: "GetRecordSchedule"}
	body, status := s.soapRespond(sa, nil, "dev1", "10.0.0.5")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "<u:GetRecordScheduleResponse")
	assert.NotContains(t, string(body), "UPnPError")
}

func TestSoapRespond_UnknownActionIsPermissive200(t *testing.T) {
	s := &Service{}
	sa := upnp.SoapAction{Type: avTransportType, Action: "NotARealAction"}
	body, status := s.soapRespond(sa, nil, "dev1", "10.0.0.5")

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "<u:NotARealActionResponse")
	assert.NotContains(t, string(body), "UPnPError")
}
