package home

// Keys owned by the Controller.
const (
	keyMode          = "sensor.home_controller_mode"
	keyLastAction    = "sensor.home_controller_last_action"
	keyStatus        = "sensor.home_controller_status"
	keyDailyConstant = "sensor.home_controller_constants"

	// morning classification
	keyProfile         = "sensor.morning_profile"
	keyClassifiedAt    = "sensor.morning_classified_at"
	keyClassifiedBy    = "sensor.morning_classified_by"
	keyWorkdayDetected = "binary_sensor.morning_workday_detected"
	keyMotionLock      = "binary_sensor.morning_motion_lock"

	// morning ramp
	keyRampActive     = "binary_sensor.morning_ramp_active"
	keyRampBrightness = "sensor.morning_ramp_brightness"
	keyRampKelvin     = "sensor.morning_ramp_kelvin"
	keyRampProgress   = "sensor.morning_ramp_progress"
	keyWorkRampEnd    = "sensor.morning_work_ramp_end"

	// early-morning contract
	keyEMActive    = "binary_sensor.early_morning_active"
	keyEMRoute     = "sensor.early_morning_route"
	keyEMStart     = "sensor.early_morning_start"
	keyEMUntil     = "sensor.early_morning_until"
	keyEMEndedAt   = "sensor.early_morning_ended_at"
	keyEMEndReason = "sensor.early_morning_end_reason"

	// day
	keyDayMinStart       = "sensor.day_min_start"
	keyDayElevTarget     = "sensor.day_elevation_target"
	keyDayReady          = "binary_sensor.day_ready_now"
	keyDayReadyReason    = "sensor.day_ready_reason"
	keyDayCommit         = "sensor.day_commit_time"
	keyDayTarget         = "sensor.day_target_brightness"
	keySunriseToday      = "sensor.sunrise_today"
	keySunsetToday       = "sensor.sunset_today"
	keyEveningStartLocal = "sensor.evening_start_local"

	// evening
	keyInEvening          = "binary_sensor.in_evening_window"
	keyEveningActive      = "binary_sensor.evening_mode_active"
	keyEveningDone        = "binary_sensor.evening_done_today"
	keyEveningReason      = "sensor.evening_last_reason"
	keyEveningRampStarted = "binary_sensor.evening_ramp_started_today"
	keyEveningRampAt      = "sensor.evening_ramp_started_at"
	keyPreRampActive      = "binary_sensor.evening_preramp_active"
	keyPreRampStart       = "sensor.evening_preramp_start"
	keyPreRampStartBright = "sensor.evening_preramp_start_brightness"

	// night
	keyNightStartedOn = "sensor.night_started_on"
	keyNightReason    = "sensor.night_last_reason"
	keyCutoverPending = "binary_sensor.night_cutover_pending"
)

const dateLayout = "2006-01-02"
