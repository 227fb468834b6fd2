package entity

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification channels
const (
	ChannelSMTP = "smtp"
	ChannelLark = "lark"
)

// Effect task kinds
const (
	EffectGenerateDocument = "GENERATE_DOCUMENT"
	EffectNotifyApplicant  = "NOTIFY_APPLICANT"
	EffectApplyMutation    = "APPLY_MUTATION"
)

// Effect task status constants
const (
	EffectStatusPending = "PENDING"
	EffectStatusRunning = "RUNNING"
	EffectStatusDone    = "DONE"
	EffectStatusFailed  = "FAILED"
)

// History trigger recorded for the creation of a request
const TriggerCreate = "CREATE"
