package psu_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"

	"codeberg.org/mutker/psuctl/internal/errors"
	"codeberg.org/mutker/psuctl/internal/psu"
	"codeberg.org/mutker/psuctl/internal/scpi"
	"codeberg.org/mutker/psuctl/internal/scpi/scpitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var ep = scpi.Endpoint{Host: "192.0.2.10", Port: scpi.DefaultPort}

// fakeSender records every exchange and fails commands listed in fail.
type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	replies  map[string]string
	fail     map[string]error
	lastPeer scpi.Endpoint
}

func (f *fakeSender) Send(_ context.Context, ep scpi.Endpoint, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, command)
	f.lastPeer = ep
	if err, ok := f.fail[command]; ok {
		return "", err
	}
	return f.replies[command], nil
}

func connErr() error {
	return errors.New().Wrap(scpi.ErrConnection, stderrors.New("connection refused"))
}

func TestEnableChannelOrder(t *testing.T) {
	tx := &fakeSender{}
	supply := psu.NewSupply(tx)

	require.NoError(t, supply.EnableChannel(context.Background(), ep, 2, "12.0", "2.0"))

	assert.Equal(t, []string{
		"SOURCE:CHANNEL2:VOLTAGE 12.0",
		"SOURCE:CHANNEL2:CURRENT 2.0",
		"OUTPUT:CHANNEL2:STATE ON",
	}, tx.sent)
	assert.Equal(t, ep, tx.lastPeer)
}

func TestEnableChannelStopsAfterVoltageFailure(t *testing.T) {
	tx := &fakeSender{fail: map[string]error{"SOURCE:CHANNEL1:VOLTAGE 5": connErr()}}
	supply := psu.NewSupply(tx)

	err := supply.EnableChannel(context.Background(), ep, 1, "5", "1")
	require.Error(t, err)
	assert.True(t, scpi.IsConnectionError(err))
	assert.True(t, errors.HasCode(err, psu.ErrCommandFailed))
	assert.Equal(t, []string{"SOURCE:CHANNEL1:VOLTAGE 5"}, tx.sent)
}

func TestEnableChannelStopsAfterCurrentFailure(t *testing.T) {
	tx := &fakeSender{fail: map[string]error{"SOURCE:CHANNEL3:CURRENT 1": connErr()}}
	supply := psu.NewSupply(tx)

	err := supply.EnableChannel(context.Background(), ep, 3, "5", "1")
	require.Error(t, err)
	assert.Equal(t, []string{"SOURCE:CHANNEL3:VOLTAGE 5", "SOURCE:CHANNEL3:CURRENT 1"}, tx.sent)
}

func TestValuesForwardedVerbatim(t *testing.T) {
	tx := &fakeSender{}
	supply := psu.NewSupply(tx)

	require.NoError(t, supply.SetVoltageAndCurrent(context.Background(), ep, 4, "999999", "-1e3"))
	assert.Equal(t, []string{"SOURCE:CHANNEL4:VOLTAGE 999999", "SOURCE:CHANNEL4:CURRENT -1e3"}, tx.sent)
}

func TestDisableChannelSingleExchange(t *testing.T) {
	tx := &fakeSender{}
	supply := psu.NewSupply(tx)

	require.NoError(t, supply.DisableChannel(context.Background(), ep, 1))
	assert.Equal(t, []string{"OUTPUT:CHANNEL1:STATE OFF"}, tx.sent)
}

func TestDisableChannelTwiceIsIndependent(t *testing.T) {
	tx := &fakeSender{fail: map[string]error{}}
	supply := psu.NewSupply(tx)

	tx.fail["OUTPUT:CHANNEL2:STATE OFF"] = connErr()
	require.Error(t, supply.DisableChannel(context.Background(), ep, 2))

	delete(tx.fail, "OUTPUT:CHANNEL2:STATE OFF")
	require.NoError(t, supply.DisableChannel(context.Background(), ep, 2))

	assert.Equal(t, []string{"OUTPUT:CHANNEL2:STATE OFF", "OUTPUT:CHANNEL2:STATE OFF"}, tx.sent)
}

func TestInvalidChannelSendsNothing(t *testing.T) {
	tx := &fakeSender{}
	supply := psu.NewSupply(tx)

	for _, ch := range []psu.Channel{0, 5, -1} {
		err := supply.EnableChannel(context.Background(), ep, ch, "1", "1")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, psu.ErrInvalidChannel))

		require.Error(t, supply.DisableChannel(context.Background(), ep, ch))
		_, err = supply.PollChannel(context.Background(), ep, ch)
		require.Error(t, err)
	}
	assert.Empty(t, tx.sent)
}

func TestPollChannel(t *testing.T) {
	tx := &fakeSender{replies: map[string]string{
		"MEASURE:CHANNEL1:VOLTAGE?": "12.000",
		"MEASURE:CHANNEL1:CURRENT?": "OVLD",
	}}
	supply := psu.NewSupply(tx)

	cs, err := supply.PollChannel(context.Background(), ep, 1)
	require.NoError(t, err)
	assert.Equal(t, psu.ChannelStatus{Voltage: "12.000", Current: "OVLD"}, cs)
}

func TestPollChannelSkipsCurrentAfterVoltageFailure(t *testing.T) {
	tx := &fakeSender{fail: map[string]error{"MEASURE:CHANNEL1:VOLTAGE?": connErr()}}
	supply := psu.NewSupply(tx)

	_, err := supply.PollChannel(context.Background(), ep, 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, psu.ErrQueryFailed))
	assert.Equal(t, []string{"MEASURE:CHANNEL1:VOLTAGE?"}, tx.sent)
}

func TestGetAllStatusOrder(t *testing.T) {
	tx := &fakeSender{replies: map[string]string{}}
	for _, ch := range psu.Channels {
		tx.replies[scpi.MeasureChannelVoltage(int(ch))] = "1" + ch.Label()
		tx.replies[scpi.MeasureChannelCurrent(int(ch))] = "2" + ch.Label()
	}
	supply := psu.NewSupply(tx)

	status, err := supply.GetAllStatus(context.Background(), ep)
	require.NoError(t, err)
	require.Len(t, status, 4)
	for i, e := range status {
		assert.Equal(t, psu.Channel(i+1), e.Channel)
	}

	assert.Equal(t, []string{
		"MEASURE:CHANNEL1:VOLTAGE?", "MEASURE:CHANNEL1:CURRENT?",
		"MEASURE:CHANNEL2:VOLTAGE?", "MEASURE:CHANNEL2:CURRENT?",
		"MEASURE:CHANNEL3:VOLTAGE?", "MEASURE:CHANNEL3:CURRENT?",
		"MEASURE:CHANNEL4:VOLTAGE?", "MEASURE:CHANNEL4:CURRENT?",
	}, tx.sent)

	doc, err := json.Marshal(status)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Channel1":{"voltage":"1Channel1","current":"2Channel1"},`+
			`"Channel2":{"voltage":"1Channel2","current":"2Channel2"},`+
			`"Channel3":{"voltage":"1Channel3","current":"2Channel3"},`+
			`"Channel4":{"voltage":"1Channel4","current":"2Channel4"}}`,
		string(doc))
}

func TestGetAllStatusDefaultFillsFailedChannels(t *testing.T) {
	tx := &fakeSender{
		replies: map[string]string{
			"MEASURE:CHANNEL1:VOLTAGE?": "5.0",
			"MEASURE:CHANNEL1:CURRENT?": "0.1",
			"MEASURE:CHANNEL4:VOLTAGE?": "3.3",
			"MEASURE:CHANNEL4:CURRENT?": "0.2",
		},
		fail: map[string]error{
			"MEASURE:CHANNEL2:VOLTAGE?": connErr(),
			"MEASURE:CHANNEL3:CURRENT?": connErr(),
		},
	}
	supply := psu.NewSupply(tx)

	status, err := supply.GetAllStatus(context.Background(), ep)
	require.Error(t, err)
	assert.True(t, scpi.IsConnectionError(err))
	assert.Contains(t, err.Error(), "Channel2")
	assert.Contains(t, err.Error(), "Channel3")

	require.Len(t, status, 4)
	unavailable := psu.ChannelStatus{Voltage: psu.Unavailable, Current: psu.Unavailable}

	cs, ok := status.Get(1)
	require.True(t, ok)
	assert.Equal(t, psu.ChannelStatus{Voltage: "5.0", Current: "0.1"}, cs)

	cs, _ = status.Get(2)
	assert.Equal(t, unavailable, cs)
	cs, _ = status.Get(3)
	assert.Equal(t, unavailable, cs)
	cs, _ = status.Get(4)
	assert.Equal(t, psu.ChannelStatus{Voltage: "3.3", Current: "0.2"}, cs)
}

func TestGetAllStatusAgainstInstrument(t *testing.T) {
	srv := scpitest.NewServer(t, scpitest.Table(map[string]string{
		"MEASURE:CHANNEL1:VOLTAGE?": "12.0",
		"MEASURE:CHANNEL1:CURRENT?": "1.5",
	}))
	supply := psu.NewSupply(scpi.NewClient())

	status, err := supply.GetAllStatus(context.Background(), srv.Endpoint())
	require.NoError(t, err)
	require.Len(t, status, 4)

	cs, _ := status.Get(1)
	assert.Equal(t, psu.ChannelStatus{Voltage: "12.0", Current: "1.5"}, cs)
	cs, _ = status.Get(3)
	assert.Equal(t, psu.ChannelStatus{}, cs)
	assert.Equal(t, 8, srv.Connections())
}

func TestStatusYAMLKeepsOrder(t *testing.T) {
	status := psu.Status{
		{Channel: 1, ChannelStatus: psu.ChannelStatus{Voltage: "1.0", Current: "0.5"}},
		{Channel: 2, ChannelStatus: psu.ChannelStatus{Voltage: "N/A", Current: "N/A"}},
	}

	out, err := yaml.Marshal(status)
	require.NoError(t, err)
	assert.Equal(t, "Channel1:\n    voltage: \"1.0\"\n    current: \"0.5\"\nChannel2:\n    voltage: N/A\n    current: N/A\n", string(out))
}

func TestStatusUnmarshalSortsByChannel(t *testing.T) {
	var status psu.Status
	require.NoError(t, json.Unmarshal([]byte(`{"Channel2":{"voltage":"2","current":"0"},"Channel1":{"voltage":"1","current":"0"}}`), &status))
	require.Len(t, status, 2)
	assert.Equal(t, psu.Channel(1), status[0].Channel)
	assert.Equal(t, psu.Channel(2), status[1].Channel)

	require.Error(t, json.Unmarshal([]byte(`{"Channel9":{}}`), &status))
}
