package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventConstruction(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		wantType EventType
	}{
		{
			name:     "station connected",
			event:    NewStationConnectedEvent("/AcTec001", "10.0.0.5:51234"),
			wantType: EventTypeStationConnected,
		},
		{
			name:     "station disconnected",
			event:    NewStationDisconnectedEvent("/AcTec001", "read error"),
			wantType: EventTypeStationDisconnected,
		},
		{
			name:     "status changed",
			event:    NewStatusChangedEvent("/AcTec001", 1, "Charging", "NoError"),
			wantType: EventTypeStatusChanged,
		},
		{
			name:     "transaction started",
			event:    NewTransactionStartedEvent("/AcTec001", 1, "RFID-42", 0),
			wantType: EventTypeTransactionStarted,
		},
		{
			name:     "transaction stopped",
			event:    NewTransactionStoppedEvent("/AcTec001", 77, 500, "Remote"),
			wantType: EventTypeTransactionStopped,
		},
		{
			name:     "command blocked",
			event:    NewCommandBlockedEvent("/AcTec001", "ChangeConfiguration", `[2,"1","ChangeConfiguration",{}]`),
			wantType: EventTypeCommandBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.event.GetType())
			assert.Equal(t, "/AcTec001", tt.event.GetStationID())
			assert.NotEmpty(t, tt.event.GetID())
			assert.False(t, tt.event.GetTimestamp().IsZero())
		})
	}
}

func TestEventToJSON(t *testing.T) {
	event := NewTransactionStartedEvent("/AcTec001", 1, "RFID-42", 120)

	data, err := event.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, string(EventTypeTransactionStarted), decoded["type"])
	assert.Equal(t, "/AcTec001", decoded["station_id"])
	assert.Equal(t, "RFID-42", decoded["id_tag"])
	assert.Equal(t, float64(120), decoded["meter_start"])
}
