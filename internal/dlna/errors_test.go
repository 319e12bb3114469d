package dlna

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToUPnPError_AVTransportUnauthorizedFaults701(t *testing.T) {
	assert.Equal(t, 701, toUPnPError(errNotAuthorized).Code)
}

func TestToUPnPError_RenderingControlUnauthorizedFaults402(t *testing.T) {
	assert.Equal(t, 402, toUPnPError(errNotAuthorizedRC).Code)
}

func TestToUPnPError_SeekOutOfRangeFaults714(t *testing.T) {
	assert.Equal(t, 714, toUPnPError(errSeekOutOfRange).Code)
}
