package home

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"io"
	"time"
)

// Configuration holds the tunables of the Controller. Zero values are replaced by the defaults of
// DefaultConfiguration when loaded through LoadConfiguration.
type Configuration struct {
	Morning  MorningConfiguration `yaml:"morning"`
	Day      DayConfiguration     `yaml:"day"`
	Evening  EveningConfiguration `yaml:"evening"`
	Night    NightConfiguration   `yaml:"night"`
	Entities Entities             `yaml:"entities"`
	// Prefix of the topics used to cache the Early-Morning contract.
	ContractTopic string `yaml:"contractTopic"`
	History       int    `yaml:"history"`
}

type MorningConfiguration struct {
	PreworkStart Timestamp         `yaml:"preworkStart"`
	WorkdayStart Timestamp         `yaml:"workdayStart"`
	WorkdayEnd   Timestamp         `yaml:"workdayEnd"`
	WindowEnd    Timestamp         `yaml:"windowEnd"`
	Reset        Timestamp         `yaml:"reset"`
	WorkRamp     RampConfiguration `yaml:"workRamp"`
	NonWorkRamp  RampConfiguration `yaml:"nonWorkRamp"`
}

type RampConfiguration struct {
	BrightnessFrom int           `yaml:"brightnessFrom"`
	BrightnessTo   int           `yaml:"brightnessTo"`
	KelvinFrom     int           `yaml:"kelvinFrom"`
	KelvinTo       int           `yaml:"kelvinTo"`
	Start          Timestamp     `yaml:"start"`
	End            Timestamp     `yaml:"end"`
	Cadence        time.Duration `yaml:"cadence"`
	HardTimeout    time.Duration `yaml:"hardTimeout"`
}

type DayConfiguration struct {
	Floor              Timestamp         `yaml:"floor"`
	SunriseOffset      time.Duration     `yaml:"sunriseOffset"`
	Debounce           time.Duration     `yaml:"debounce"`
	Hysteresis         float64           `yaml:"hysteresis"`
	ElevationTargets   map[int]float64   `yaml:"elevationTargets"`
	FallbackBrightness int               `yaml:"fallbackBrightness"`
	ConstantsRefresh   Timestamp         `yaml:"constantsRefresh"`
	SunSchedule        Timestamp         `yaml:"sunSchedule"`
	Learning           LearningSelection `yaml:"learning"`
}

// LearningSelection selects the learned samples used as the teaching brightness source.
type LearningSelection struct {
	Room      string `yaml:"room"`
	Condition string `yaml:"condition"`
}

type EveningConfiguration struct {
	StartOffset  time.Duration     `yaml:"startOffset"`
	Cutoff       Timestamp         `yaml:"cutoff"`
	EarliestHour int               `yaml:"earliestHour"`
	Reset        Timestamp         `yaml:"reset"`
	PreRamp      RampConfiguration `yaml:"preRamp"`
	ColorRamp    RampConfiguration `yaml:"colorRamp"`
}

type NightConfiguration struct {
	DisplayDebounce time.Duration `yaml:"displayDebounce"`
	Wait            time.Duration `yaml:"wait"`
	Exempt          []string      `yaml:"exempt"`
}

// Entities names the host keys the Controller reads.
type Entities struct {
	Presence          []string `yaml:"presence"`
	HomeValue         string   `yaml:"homeValue"`
	Motion            []string `yaml:"motion"`
	BedroomDisplay    string   `yaml:"bedroomDisplay"`
	SecondaryDisplay  string   `yaml:"secondaryDisplay"`
	ColorLights       []string `yaml:"colorLights"`
	Sun               string   `yaml:"sun"`
	ModeSelect        string   `yaml:"modeSelect"`
	DayTypeOverride   string   `yaml:"dayTypeOverride"`
	Enabled           string   `yaml:"enabled"`
	FreezeTime        string   `yaml:"freezeTime"`
	TimeOverride      string   `yaml:"timeOverride"`
	Cutoff            []string `yaml:"cutoff"`
	DayFloor          []string `yaml:"dayFloor"`
	LearnedStart      []string `yaml:"learnedStart"`
	Brightness        []string `yaml:"brightness"`
	ElevationOverride string   `yaml:"elevationOverride"`
}

// DefaultConfiguration returns the default Configuration.
func DefaultConfiguration() Configuration {
	return Configuration{
		Morning: MorningConfiguration{
			PreworkStart: At(4, 45),
			WorkdayStart: At(4, 50),
			WorkdayEnd:   At(5, 0),
			WindowEnd:    At(10, 0),
			Reset:        At(4, 30),
			WorkRamp: RampConfiguration{
				BrightnessFrom: 10, BrightnessTo: 50,
				KelvinFrom: 2000, KelvinTo: 4000,
				End:         At(5, 40),
				Cadence:     30 * time.Second,
				HardTimeout: 6 * time.Hour,
			},
			NonWorkRamp: RampConfiguration{
				BrightnessFrom: 10,
				KelvinFrom:     2000, KelvinTo: 5000,
				Cadence:     30 * time.Second,
				HardTimeout: 6 * time.Hour,
			},
		},
		Day: DayConfiguration{
			Floor:         At(7, 30),
			SunriseOffset: 30 * time.Minute,
			Debounce:      120 * time.Second,
			Hysteresis:    3,
			ElevationTargets: map[int]float64{
				1: 12, 2: 11, 3: 10, 4: 9, 5: 9, 6: 8,
				7: 8, 8: 9, 9: 10, 10: 11, 11: 11, 12: 12,
			},
			FallbackBrightness: 70,
			ConstantsRefresh:   At(0, 2),
			SunSchedule:        At(0, 1),
		},
		Evening: EveningConfiguration{
			StartOffset:  15 * time.Minute,
			Cutoff:       At(23, 0),
			EarliestHour: 15,
			Reset:        At(0, 5),
			PreRamp: RampConfiguration{
				BrightnessTo: 50,
				Start:        At(19, 50),
				End:          At(20, 0),
				Cadence:      15 * time.Second,
				HardTimeout:  time.Hour,
			},
			ColorRamp: RampConfiguration{
				BrightnessFrom: 50, BrightnessTo: 50,
				KelvinFrom: 4000, KelvinTo: 2000,
				Start:       At(20, 0),
				End:         At(21, 0),
				Cadence:     30 * time.Second,
				HardTimeout: 2 * time.Hour,
			},
		},
		Night: NightConfiguration{
			DisplayDebounce: 5 * time.Second,
			Wait:            30 * time.Minute,
			Exempt:          []string{"wled"},
		},
		Entities: Entities{
			Presence:         []string{"device_tracker.iphone15", "device_tracker.work_iphone"},
			HomeValue:        "home",
			Motion:           []string{"binary_sensor.aqara_motion_sensor_p1_occupancy", "binary_sensor.kitchen_iris_frig_occupancy"},
			BedroomDisplay:   "media_player.bedroom",
			SecondaryDisplay: "media_player.apple_tv_4k_livingroom",
			ColorLights:      []string{"light.lamp_1", "light.lamp_2", "light.closet"},
			Sun:              "sun.sun",
			ModeSelect:       "input_select.home_state",
			DayTypeOverride:  "input_select.morning_day_type_override",
			Enabled:          "input_boolean.home_controller_enabled",
			FreezeTime:       "input_boolean.freeze_time",
			TimeOverride:     "input_datetime.time_override",
			Cutoff:           []string{"input_datetime.evening_time_cutoff"},
			DayFloor:         []string{"input_datetime.day_earliest_time"},
			LearnedStart:     []string{"sensor.learned_day_start", "sensor.day_learned_start"},
			Brightness: []string{
				"sensor.day_target_brightness_teaching",
				"sensor.day_target_brightness_adaptive",
				"sensor.day_target_brightness_intelligent",
				"input_number.day_target_brightness_fallback",
			},
			ElevationOverride: "input_number.day_elevation_target",
		},
		ContractTopic: "home/controller",
		History:       5,
	}
}

// LoadConfiguration reads a Configuration from r. Settings not present in r keep their default value.
func LoadConfiguration(r io.Reader) (Configuration, error) {
	cfg := DefaultConfiguration()
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Configuration{}, fmt.Errorf("invalid home configuration: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Configuration) validate() error {
	m := c.Morning
	if !m.PreworkStart.Before(m.WorkdayStart) && m.PreworkStart != m.WorkdayStart {
		return fmt.Errorf("morning: preworkStart (%s) must not be after workdayStart (%s)", m.PreworkStart, m.WorkdayStart)
	}
	if !m.WorkdayStart.Before(m.WorkdayEnd) || !m.WorkdayEnd.Before(m.WindowEnd) {
		return fmt.Errorf("morning: workdayStart, workdayEnd and windowEnd must be increasing")
	}
	if len(c.Entities.Presence) == 0 {
		return fmt.Errorf("entities: at least one presence tracker is required")
	}
	return nil
}
