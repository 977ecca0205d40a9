package models

import "time"

type NotificationType string

const (
	NotifyCourseReminder    NotificationType = "course_reminder"
	NotifyQuizDue           NotificationType = "quiz_due"
	NotifyQuizResult        NotificationType = "quiz_result"
	NotifyAchievement       NotificationType = "achievement"
	NotifyNewContent        NotificationType = "new_content"
	NotifyMessageInstructor NotificationType = "message_instructor"
	NotifyCourseCompleted   NotificationType = "course_completed"
	NotifyStreakReminder    NotificationType = "streak_reminder"
	NotifyGeneral           NotificationType = "general"
)

// ParseNotificationType maps unknown values to NotifyGeneral.
func ParseNotificationType(s string) NotificationType {
	switch t := NotificationType(s); t {
	case NotifyCourseReminder, NotifyQuizDue, NotifyQuizResult, NotifyAchievement,
		NotifyNewContent, NotifyMessageInstructor, NotifyCourseCompleted,
		NotifyStreakReminder, NotifyGeneral:
		return t
	}
	return NotifyGeneral
}

type NotificationPriority int

const (
	PriorityLow    NotificationPriority = 1
	PriorityNormal NotificationPriority = 2
	PriorityHigh   NotificationPriority = 3
	PriorityUrgent NotificationPriority = 4
)

func (p NotificationPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	}
	return "unknown"
}

type NotificationChannel string

const (
	ChannelCourseReminders NotificationChannel = "course_reminders"
	ChannelQuizAlerts      NotificationChannel = "quiz_alerts"
	ChannelAchievements    NotificationChannel = "achievements"
	ChannelGeneral         NotificationChannel = "general"
)

// Notification is an in-app notification delivered to one user.
type Notification struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Channel   NotificationChannel  `json:"channel"`
	Priority  NotificationPriority `json:"priority"`
	Read      bool                 `json:"read"`
	Sent      bool                 `json:"sent"`
	Data      map[string]string    `json:"data,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ReadAt    *time.Time           `json:"read_at"`
}

type UpdatePreferencesRequest struct {
	Preferences map[string]bool `json:"preferences" validate:"required,min=1"`
}
