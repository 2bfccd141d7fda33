package tracker

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/ocpp-proxy/internal/domain/frame"
	"github.com/charging-platform/ocpp-proxy/internal/domain/ocpp16"
	"github.com/charging-platform/ocpp-proxy/internal/status"
)

// fakeSender 捕获注入的帧供断言
type fakeSender struct {
	mu         sync.Mutex
	controller []sentFrame
	wallbox    []sentFrame
}

type sentFrame struct {
	frame *frame.Frame
	tag   string
}

func (s *fakeSender) SendToController(f *frame.Frame, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = append(s.controller, sentFrame{frame: f, tag: tag})
	return nil
}

func (s *fakeSender) SendToWallbox(f *frame.Frame, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallbox = append(s.wallbox, sentFrame{frame: f, tag: tag})
	return nil
}

func (s *fakeSender) controllerFrames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentFrame, len(s.controller))
	copy(out, s.controller)
	return out
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.TriggerTimeout = 30 * time.Millisecond
	return cfg
}

func decodeTestFrame(t *testing.T, raw string) *frame.Frame {
	t.Helper()
	f, err := frame.Decode([]byte(raw))
	require.NoError(t, err)
	return f
}

func TestTriggerStatusNotificationTimeout(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	trigger := decodeTestFrame(t, `[2,"t1","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`)
	forward := tr.HandleControllerCall(trigger)
	assert.True(t, forward)

	// 立即代答Accepted
	frames := sender.controllerFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, frame.CallResult, frames[0].frame.Type)
	assert.Equal(t, "t1", frames[0].frame.ID)
	assert.Equal(t, status.TagAutoResponse, frames[0].tag)

	var resp ocpp16.TriggerMessageResponse
	require.NoError(t, json.Unmarshal(frames[0].frame.Payload, &resp))
	assert.Equal(t, ocpp16.TriggerMessageStatusAccepted, resp.Status)

	// 超时后恰好一条合成StatusNotification，使用默认Available/NoError
	time.Sleep(100 * time.Millisecond)
	frames = sender.controllerFrames()
	require.Len(t, frames, 2)
	synthetic := frames[1]
	assert.Equal(t, frame.Call, synthetic.frame.Type)
	assert.Equal(t, "StatusNotification", synthetic.frame.Action)
	assert.Equal(t, status.TagSynthetic, synthetic.tag)

	var sn ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(synthetic.frame.Payload, &sn))
	assert.Equal(t, 1, sn.ConnectorId)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, sn.Status)
	assert.Equal(t, ocpp16.ErrorCodeNoError, sn.ErrorCode)
	assert.NotEmpty(t, sn.Timestamp)
}

func TestTriggerStatusNotificationResolvedByRealMessage(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t2","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`))
	tr.ObserveWallboxCall(decodeTestFrame(t, `[2,"w1","StatusNotification",{"connectorId":1,"status":"Charging","errorCode":"NoError"}]`))

	time.Sleep(100 * time.Millisecond)
	frames := sender.controllerFrames()
	require.Len(t, frames, 1, "only the trigger auto-response, no synthetic")
	assert.Equal(t, frame.CallResult, frames[0].frame.Type)
}

func TestTriggerStatusNotificationUsesLastKnownStatus(t *testing.T) {
	sender := &fakeSender{}
	store := status.NewStore()
	tr := New(testConfig(), store, sender, nil)
	defer tr.Stop()

	statusFrame := decodeTestFrame(t, `[2,"w2","StatusNotification",{"connectorId":1,"status":"Faulted","errorCode":"GroundFailure"}]`)
	store.Fold(frame.WallboxToController, statusFrame, "")

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t3","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`))
	time.Sleep(100 * time.Millisecond)

	frames := sender.controllerFrames()
	require.Len(t, frames, 2)
	var sn ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(frames[1].frame.Payload, &sn))
	assert.Equal(t, ocpp16.ChargePointStatusFaulted, sn.Status)
	assert.Equal(t, ocpp16.ErrorCodeGroundFailure, sn.ErrorCode)
}

// 同能力的新触发替换旧条目，只产生一条合成消息
func TestTriggerReplacementCancelsPriorTimer(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t4","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`))
	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t5","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`))

	time.Sleep(120 * time.Millisecond)
	var synthetic int
	for _, sf := range sender.controllerFrames() {
		if sf.frame.Type == frame.Call && sf.frame.Action == "StatusNotification" {
			synthetic++
		}
	}
	assert.Equal(t, 1, synthetic)
}

func TestTriggerBootNotificationImmediate(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t6","TriggerMessage",{"requestedMessage":"BootNotification"}]`))

	frames := sender.controllerFrames()
	require.Len(t, frames, 2, "auto-response plus immediate synthetic boot")
	boot := frames[1]
	assert.Equal(t, "BootNotification", boot.frame.Action)
	assert.Equal(t, status.TagSynthetic, boot.tag)

	var req ocpp16.BootNotificationRequest
	require.NoError(t, json.Unmarshal(boot.frame.Payload, &req))
	assert.Equal(t, "AcTec", req.ChargePointVendor)
	assert.Equal(t, "AcTec001", req.ChargePointSerialNumber)
}

func TestChangeAvailabilityAutoResponse(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	call := decodeTestFrame(t, `[2,"c1","ChangeAvailability",{"connectorId":1,"type":"Inoperative"}]`)
	forward := tr.HandleControllerCall(call)
	assert.True(t, forward, "still forwarded for the wallbox to see")

	frames := sender.controllerFrames()
	require.Len(t, frames, 1)
	var resp ocpp16.ChangeAvailabilityResponse
	require.NoError(t, json.Unmarshal(frames[0].frame.Payload, &resp))
	assert.Equal(t, ocpp16.AvailabilityStatusAccepted, resp.Status)

	// 壁挂桩自己的应答被抑制，且只抑制一次
	assert.True(t, tr.ShouldSuppress(frame.WallboxToController, "c1"))
	assert.False(t, tr.ShouldSuppress(frame.WallboxToController, "c1"))
}

func TestGetConfigurationAutoResponse(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"g1","GetConfiguration",{"key":["HeartbeatInterval","NoSuchKey"]}]`))

	frames := sender.controllerFrames()
	require.Len(t, frames, 1)
	var resp ocpp16.GetConfigurationResponse
	require.NoError(t, json.Unmarshal(frames[0].frame.Payload, &resp))
	require.Len(t, resp.ConfigurationKey, 1)
	assert.Equal(t, "HeartbeatInterval", resp.ConfigurationKey[0].Key)
	assert.Equal(t, "300", resp.ConfigurationKey[0].Value)
	assert.Equal(t, []string{"NoSuchKey"}, resp.UnknownKey)
}

func TestResolveCallActions(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)
	defer tr.Stop()

	tr.ObserveWallboxCall(decodeTestFrame(t, `[2,"w3","StartTransaction",{"connectorId":1,"idTag":"RFID-42","meterStart":0,"timestamp":"2024-05-17T09:30:00.000Z"}]`))
	assert.Equal(t, "StartTransaction", tr.ResolveWallboxCall("w3"))
	assert.Empty(t, tr.ResolveWallboxCall("w3"), "entry consumed")

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"c2","RemoteStartTransaction",{"idTag":"RFID-42"}]`))
	assert.Equal(t, "RemoteStartTransaction", tr.ResolveControllerCall("c2"))
}

func TestStopCancelsPendingTimers(t *testing.T) {
	sender := &fakeSender{}
	tr := New(testConfig(), status.NewStore(), sender, nil)

	tr.HandleControllerCall(decodeTestFrame(t, `[2,"t7","TriggerMessage",{"requestedMessage":"StatusNotification","connectorId":1}]`))
	tr.Stop()

	time.Sleep(100 * time.Millisecond)
	frames := sender.controllerFrames()
	assert.Len(t, frames, 1, "no synthetic after Stop")
}
