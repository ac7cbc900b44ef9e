package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort          = 4840
	DefaultPath          = "rust_ciet_opcua_server"
	DefaultNamespace     = 2
	DefaultBridgePeriod  = 70 * time.Millisecond
	DefaultRetryInterval = time.Second
	DefaultControlPeriod = 100 * time.Millisecond
	DefaultPlantPeriod   = 15 * time.Millisecond

	DefaultInletReference  = 79.12
	DefaultOutletReference = 102.41
	DefaultBias            = 8000.0
	DefaultMassFlow        = 0.18
	DefaultAmbient         = 21.67
)

const (
	ModeParallelSum = "parallel-sum"
	ModeCascade     = "cascade"
	ModePIDCascade  = "pid-cascade"
	ModeManual      = "manual"
)

var Modes = []string{ModeParallelSum, ModeCascade, ModePIDCascade, ModeManual}

type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Control   ControlConfig   `yaml:"control"`
	Series    SeriesConfig    `yaml:"series"`
	Plant     PlantConfig     `yaml:"plant"`
	Probe     ProbeConfig     `yaml:"probe"`
	Record    RecordConfig    `yaml:"record"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type TelemetryConfig struct {
	// Address is the server host; empty means the local machine.
	Address        string   `yaml:"address"`
	Port           int      `yaml:"port"`
	Path           string   `yaml:"path"`
	Namespace      uint16   `yaml:"namespace"`
	Period         Duration `yaml:"period"`
	RetryInterval  Duration `yaml:"retry_interval"`
	RequestTimeout Duration `yaml:"request_timeout"`
	Loopback       bool     `yaml:"loopback"`
}

// TFConfig is num(s)/den(s), highest power first, with a dead time in seconds.
type TFConfig struct {
	Num   []float64 `yaml:"num,flow"`
	Den   []float64 `yaml:"den,flow"`
	Delay float64   `yaml:"delay"`
	// Integrator and MaxStep override the rk4 stepper and its sub-step bound.
	Integrator string  `yaml:"integrator,omitempty"`
	MaxStep    float64 `yaml:"max_step,omitempty"`
}

type BranchConfig struct {
	Name string `yaml:"name"`
	// Gain in W/K applied to the branch output.
	Gain   float64    `yaml:"gain"`
	Stages []TFConfig `yaml:"stages"`
}

type PIDCascadeConfig struct {
	InnerGain      float64 `yaml:"inner_gain"`
	DerivativeTime float64 `yaml:"derivative_time"`
	FilterRatio    float64 `yaml:"filter_ratio"`
	OuterGain      float64 `yaml:"outer_gain"`
	IntegralTime   float64 `yaml:"integral_time"`
	// Gain in W/K scaling the outer block output.
	Gain float64 `yaml:"gain"`
}

type ControlConfig struct {
	Mode   string   `yaml:"mode"`
	Period Duration `yaml:"period"`

	InletReference  float64 `yaml:"inlet_reference_degc"`
	OutletReference float64 `yaml:"outlet_reference_degc"`
	Bias            float64 `yaml:"bias_watts"`
	Floor           float64 `yaml:"floor_watts"`

	Reference TFConfig         `yaml:"reference"`
	Branches  []BranchConfig   `yaml:"branches"`
	Cascade   BranchConfig     `yaml:"cascade"`
	PID       PIDCascadeConfig `yaml:"pid"`
}

type SeriesConfig struct {
	FlowWindow        Duration `yaml:"flow_window"`
	TemperatureWindow Duration `yaml:"temperature_window"`
}

type PlantConfig struct {
	Period     Duration `yaml:"period"`
	Integrator string   `yaml:"integrator"`

	Nodes              int     `yaml:"nodes"`
	MassFlow           float64 `yaml:"mass_flow_kg_s"`
	SpecificHeat       float64 `yaml:"specific_heat"`
	FluidCapacity      float64 `yaml:"fluid_capacity"`
	ShellCapacity      float64 `yaml:"shell_capacity"`
	ShellConductance   float64 `yaml:"shell_conductance"`
	AmbientConductance float64 `yaml:"ambient_conductance"`
	Ambient            float64 `yaml:"ambient_degc"`
	OutletResolution   float64 `yaml:"outlet_resolution"`
	// FlowCoefficient maps sqrt(pump pressure in Pa) to branch flow in kg/s.
	FlowCoefficient float64 `yaml:"flow_coefficient"`

	InitialPumpPressure float64 `yaml:"initial_pump_pressure"`
}

type ProbeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Period  Duration `yaml:"period"`
}

type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// 0.000119 s^2 + 0.000101128 s - 1.87086e-6 over s^2 + 0.0007903 s + 6.667e-7
func feedbackShape() TFConfig {
	return TFConfig{
		Num: []float64{0.000119, 0.000101128, -1.87086e-6},
		Den: []float64{1, 0.0007903, 6.667e-7},
	}
}

// 4.5/(0.1 s + 1)
func firstOrderLag() TFConfig {
	return TFConfig{Num: []float64{4.5}, Den: []float64{0.1, 1}}
}

// 0.000119 s - 2.201e-7 over s^2 + 0.0007903 s + 6.667e-7
func outletReference() TFConfig {
	return TFConfig{
		Num: []float64{0.000119, -2.201e-7},
		Den: []float64{1, 0.0007903, 6.667e-7},
	}
}

func DefaultConfig() *Config {
	return &Config{
		Telemetry: TelemetryConfig{
			Port:           DefaultPort,
			Path:           DefaultPath,
			Namespace:      DefaultNamespace,
			Period:         Duration{DefaultBridgePeriod},
			RetryInterval:  Duration{DefaultRetryInterval},
			RequestTimeout: Duration{2 * time.Second},
		},
		Control: ControlConfig{
			Mode:            ModeParallelSum,
			Period:          Duration{DefaultControlPeriod},
			InletReference:  DefaultInletReference,
			OutletReference: DefaultOutletReference,
			Bias:            DefaultBias,
			Floor:           0,
			Reference:       outletReference(),
			Branches: []BranchConfig{
				{Name: "direct", Gain: 3401.36, Stages: []TFConfig{feedbackShape()}},
				{Name: "lagged", Gain: -340.136, Stages: []TFConfig{firstOrderLag(), feedbackShape()}},
			},
			Cascade: BranchConfig{
				Name: "lagged", Gain: -340.136, Stages: []TFConfig{firstOrderLag(), feedbackShape()},
			},
			PID: PIDCascadeConfig{
				InnerGain:      1.0,
				DerivativeTime: 10,
				FilterRatio:    0.1,
				OuterGain:      1.0,
				IntegralTime:   60,
				Gain:           1000,
			},
		},
		Series: SeriesConfig{
			FlowWindow:        Duration{10 * time.Second},
			TemperatureWindow: Duration{45 * time.Second},
		},
		Plant: PlantConfig{
			Period:              Duration{DefaultPlantPeriod},
			Integrator:          "rk4",
			Nodes:               6,
			MassFlow:            DefaultMassFlow,
			SpecificHeat:        1908.0,
			FluidCapacity:       5724.0,
			ShellCapacity:       5000.0,
			ShellConductance:    500.0,
			AmbientConductance:  0.0,
			Ambient:             DefaultAmbient,
			OutletResolution:    0.1,
			FlowCoefficient:     0.0045,
			InitialPumpPressure: 1600,
		},
		Probe: ProbeConfig{
			Enabled: true,
			Period:  Duration{DefaultControlPeriod},
		},
		Record: RecordConfig{
			Dir: "data",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		panic(err)
	}
	return out
}
