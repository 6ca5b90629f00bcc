package status

import (
	"encoding/json"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/config"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/discipline"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string            `json:"event,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	State         string            `json:"state"`
	GpsStatus     uint8             `json:"gps_status"`
	Locked        bool              `json:"locked"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartTime     string            `json:"start_time"`
	Timestamp     string            `json:"timestamp"`
	MQTT          MQTTStatus        `json:"mqtt"`
	Discipline    DisciplineJSON    `json:"discipline"`
	Pendulum      PendulumJSON      `json:"pendulum"`
	Queues        QueuesJSON        `json:"queues"`
	Network       *NetworkJSON      `json:"network,omitempty"`
	Config        ConfigJSON        `json:"config"`
	Tunables      map[string]string `json:"tunables"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// DisciplineJSON is the PPS estimator view.
type DisciplineJSON struct {
	Pulses       uint32 `json:"pulses"`
	Nominal      uint32 `json:"f_nominal"`
	Instant      uint32 `json:"f_inst"`
	Fast         uint32 `json:"f_fast"`
	Slow         uint32 `json:"f_slow"`
	RPpm         uint32 `json:"r_ppm"`
	JPpm         uint32 `json:"j_ppm"`
	MAD          uint32 `json:"mad_ticks"`
	LockStable   uint8  `json:"lock_stable"`
	UnlockCount  uint8  `json:"unlock_count"`
	CorrInstPpm  int32  `json:"corr_inst_ppm"`
	CorrBlendPpm int32  `json:"corr_blend_ppm"`
	BlendWeight  uint32 `json:"blend_weight_q16"`
	Denominator  uint32 `json:"denominator"`
	HampelFill   uint8  `json:"hampel_fill"`
}

// PendulumJSON is the swing decoder view.
type PendulumJSON struct {
	Phase      string      `json:"phase"`
	Swings     uint32      `json:"swings"`
	Samples    uint64      `json:"samples"`
	Ignored    uint32      `json:"ignored_edges"`
	LastSample *SampleJSON `json:"last_sample,omitempty"`
}

// SampleJSON is the most recent emitted sample.
type SampleJSON struct {
	Seq       uint64 `json:"seq"`
	Units     string `json:"units"`
	Tick      uint32 `json:"tick"`
	Tock      uint32 `json:"tock"`
	TickBlock uint32 `json:"tick_block"`
	TockBlock uint32 `json:"tock_block"`
}

// QueuesJSON reports high-water fill against capacity and the shared drop count.
type QueuesJSON struct {
	IRFill    int    `json:"ir_fill"`
	IRCap     int    `json:"ir_cap"`
	PPSFill   int    `json:"pps_fill"`
	PPSCap    int    `json:"pps_cap"`
	SwingFill int    `json:"swing_fill"`
	SwingCap  int    `json:"swing_cap"`
	Dropped   uint32 `json:"dropped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs       int64  `json:"poll_ms"`
	HeartbeatMs  int64  `json:"heartbeat_ms"`
	NominalHz    uint32 `json:"nominal_hz"`
	Source       string `json:"source"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
	SerialPort   string `json:"serial_port,omitempty"`
	TunablesFile string `json:"tunables_file,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	st := snap.Stats
	d := st.Discipline

	inner := StatusInner{
		State:         d.State.String(),
		GpsStatus:     d.State.WireStatus(),
		Locked:        d.State == discipline.Locked,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Discipline: DisciplineJSON{
			Pulses:       d.Pulses,
			Nominal:      d.NominalHz,
			Instant:      d.Estimate.Instantaneous,
			Fast:         d.Estimate.Fast,
			Slow:         d.Estimate.Slow,
			RPpm:         d.Metrics.RPpm,
			JPpm:         d.Metrics.JPpm,
			MAD:          d.Metrics.MAD,
			LockStable:   d.LockStable,
			UnlockCount:  d.UnlockCtr,
			CorrInstPpm:  d.Correction.InstPpm,
			CorrBlendPpm: d.Correction.BlendPpm,
			BlendWeight:  d.Correction.BlendWeight,
			Denominator:  d.Correction.ActiveDenominator,
			HampelFill:   d.HampelFill,
		},
		Pendulum: PendulumJSON{
			Phase:   st.Phase.String(),
			Swings:  st.Swings,
			Samples: st.Samples,
			Ignored: st.Ignored,
		},
		Queues: QueuesJSON{
			IRFill:    st.IRFill,
			IRCap:     st.IRCap,
			PPSFill:   st.PPSFill,
			PPSCap:    st.PPSCap,
			SwingFill: st.SwingFill,
			SwingCap:  st.SwingCap,
			Dropped:   st.Dropped,
		},
		Config: ConfigJSON{
			PollMs:       snap.Config.PollMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			NominalHz:    snap.Config.NominalHz,
			Source:       snap.Config.Source,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			SerialPort:   snap.Config.SerialPort,
			TunablesFile: snap.Config.TunablesFile,
		},
		Tunables: tunablesMap(snap.Tunables),
	}

	if snap.HasSample {
		s := snap.LastSample
		inner.Pendulum.LastSample = &SampleJSON{
			Seq:       s.Seq,
			Units:     s.Units.String(),
			Tick:      s.Tick,
			Tock:      s.Tock,
			TickBlock: s.TickBlock,
			TockBlock: s.TockBlock,
		}
	}
	return inner
}

func tunablesMap(t config.Tunables) map[string]string {
	m := make(map[string]string, len(config.Params()))
	for _, p := range config.Params() {
		m[p.Name] = p.Get(&t)
	}
	return m
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
