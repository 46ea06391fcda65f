package models

// HRV fields. The status string rides in Text of the last-night row.
const (
	FieldHRVLastNight    = "last_night_avg"
	FieldHRVWeekly       = "weekly_avg"
	FieldHRVBaselineLow  = "baseline_low"
	FieldHRVBaselineHigh = "baseline_high"
)

// Sleep fields, all in minutes except the score.
const (
	FieldSleepDuration = "duration_min"
	FieldSleepDeep     = "deep_min"
	FieldSleepLight    = "light_min"
	FieldSleepREM      = "rem_min"
	FieldSleepAwake    = "awake_min"
	FieldSleepScore    = "score"
)

// Daily summary fields. Activity-level and intensity values are in minutes.
const (
	FieldRestingHR         = "resting_hr"
	FieldRestingHR7d       = "resting_hr_7d"
	FieldAvgStress         = "avg_stress"
	FieldTotalSteps        = "total_steps"
	FieldActiveCalories    = "active_kcal"
	FieldBodyBatteryHigh   = "body_battery_high"
	FieldBodyBatteryLow    = "body_battery_low"
	FieldBodyBatteryWake   = "body_battery_wake"
	FieldHighlyActiveMin   = "highly_active_min"
	FieldActiveMin         = "active_min"
	FieldSedentaryMin      = "sedentary_min"
	FieldSleepingMin       = "sleeping_min"
	FieldModerateIntensity = "moderate_intensity_min"
	FieldVigorousIntensity = "vigorous_intensity_min"
	FieldIntensityMinGoal  = "intensity_min_goal"
)
