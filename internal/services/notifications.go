package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"learnizone-backend/internal/apperr"
	"learnizone-backend/internal/models"
	"learnizone-backend/internal/repository"
)

const (
	courseReminderInterval   = 24 * time.Hour
	courseReminderIdleAfter  = 24 * time.Hour
	notificationPollInterval = 1 * time.Hour
	defaultNotificationLimit = 50
)

// Classification is where and how urgently a notification is shown.
type Classification struct {
	Channel  models.NotificationChannel  `json:"channel"`
	Priority models.NotificationPriority `json:"priority"`
}

// Only these types have their own switch; everything else is general.
var channelByType = map[models.NotificationType]models.NotificationChannel{
	models.NotifyCourseReminder: models.ChannelCourseReminders,
	models.NotifyQuizDue:        models.ChannelQuizAlerts,
	models.NotifyAchievement:    models.ChannelAchievements,
}

var preferenceKeyByChannel = map[models.NotificationChannel]string{
	models.ChannelCourseReminders: "course_reminders_enabled",
	models.ChannelQuizAlerts:      "quiz_alerts_enabled",
	models.ChannelAchievements:    "achievements_enabled",
	models.ChannelGeneral:         "general_enabled",
}

// Classify maps a notification type to its channel and priority. No type is
// urgent.
func Classify(t models.NotificationType) Classification {
	channel, ok := channelByType[t]
	if !ok {
		channel = models.ChannelGeneral
	}

	priority := models.PriorityLow
	switch t {
	case models.NotifyQuizDue:
		priority = models.PriorityHigh
	case models.NotifyAchievement, models.NotifyCourseReminder:
		priority = models.PriorityNormal
	}
	return Classification{Channel: channel, Priority: priority}
}

// PreferenceKey is the user setting that switches type t on or off.
func PreferenceKey(t models.NotificationType) string {
	return preferenceKeyByChannel[Classify(t).Channel]
}

// PreferenceKeys lists every known preference key, sorted.
func PreferenceKeys() []string {
	keys := make([]string, 0, len(preferenceKeyByChannel))
	for _, k := range preferenceKeyByChannel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PreferenceStore reads and writes a user's notification switches.
type PreferenceStore interface {
	GetSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	UpdateNotificationPreferences(ctx context.Context, userID string, prefs map[string]bool) (*models.UserSettings, error)
}

// Notifier decides whether a notification fires, stores it and pushes it to
// the user's connections.
type Notifier struct {
	prefs     PreferenceStore
	repo      *repository.NotificationRepo
	publisher Publisher
}

func NewNotifier(prefs PreferenceStore, repo *repository.NotificationRepo, publisher Publisher) *Notifier {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Notifier{prefs: prefs, repo: repo, publisher: publisher}
}

// ShouldNotify reports whether the user wants notifications of type t.
// Switches the user never touched count as enabled.
func (n *Notifier) ShouldNotify(ctx context.Context, userID string, t models.NotificationType) (bool, error) {
	settings, err := n.prefs.GetSettings(ctx, userID)
	if err != nil {
		return false, err
	}
	enabled, ok := settings.Notifications[PreferenceKey(t)]
	return !ok || enabled, nil
}

// Notify delivers a notification unless the user switched its channel off,
// in which case it returns nil and no error.
func (n *Notifier) Notify(ctx context.Context, userID string, t models.NotificationType, title, message string, data map[string]string) (*models.Notification, error) {
	ok, err := n.ShouldNotify(ctx, userID, t)
	if err != nil || !ok {
		return nil, err
	}

	c := Classify(t)
	notification := &models.Notification{
		UserID:   userID,
		Type:     t,
		Title:    title,
		Message:  message,
		Channel:  c.Channel,
		Priority: c.Priority,
		Data:     data,
	}
	if err := n.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	n.publisher.Publish(ctx, userID, models.WSMessage{Type: "notification", Payload: notification})
	if err := n.repo.MarkSent(ctx, notification.ID); err != nil {
		log.Printf("notifications: mark %s sent: %v", notification.ID, err)
	} else {
		notification.Sent = true
	}
	return notification, nil
}

// AttemptSubmitted turns a graded quiz attempt into a result notification,
// plus an achievement when it passed.
func (n *Notifier) AttemptSubmitted(ctx context.Context, quiz *models.Quiz, attempt models.QuizAttempt) {
	data := map[string]string{
		"quiz_id":    quiz.ID,
		"attempt_id": attempt.ID,
		"score":      fmt.Sprintf("%d", attempt.Score),
	}

	message := fmt.Sprintf("You scored %d%% on %s.", attempt.Score, quiz.Title)
	if attempt.AutoSubmitted {
		message = fmt.Sprintf("Time ran out on %s. Your answers were submitted with a score of %d%%.", quiz.Title, attempt.Score)
	}
	if _, err := n.Notify(ctx, attempt.UserID, models.NotifyQuizResult, "Quiz result", message, data); err != nil {
		log.Printf("notifications: quiz result for %s: %v", attempt.ID, err)
	}

	if !attempt.Passed {
		return
	}
	if _, err := n.Notify(ctx, attempt.UserID, models.NotifyAchievement, "Quiz passed",
		fmt.Sprintf("You passed %s!", quiz.Title), data); err != nil {
		log.Printf("notifications: achievement for %s: %v", attempt.ID, err)
	}
}

// Inbox is a page of notifications with the total unread count.
type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func (n *Notifier) List(ctx context.Context, userID string, limit int) (*Inbox, error) {
	if limit <= 0 || limit > defaultNotificationLimit {
		limit = defaultNotificationLimit
	}
	list, err := n.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := n.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return &Inbox{Notifications: list, Unread: unread}, nil
}

func (n *Notifier) MarkRead(ctx context.Context, id, userID string) error {
	return n.repo.MarkRead(ctx, id, userID)
}

func (n *Notifier) Delete(ctx context.Context, id, userID string) error {
	return n.repo.Delete(ctx, id, userID)
}

// Preferences returns every known switch, filling in defaults.
func (n *Notifier) Preferences(ctx context.Context, userID string) (map[string]bool, error) {
	settings, err := n.prefs.GetSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return withDefaults(settings.Notifications), nil
}

func (n *Notifier) UpdatePreferences(ctx context.Context, userID string, prefs map[string]bool) (map[string]bool, error) {
	known := make(map[string]bool, len(preferenceKeyByChannel))
	for _, k := range PreferenceKeys() {
		known[k] = true
	}
	fields := make(map[string]string)
	for k := range prefs {
		if !known[k] {
			fields[k] = "Unknown notification preference"
		}
	}
	if len(fields) > 0 {
		return nil, &apperr.ValidationError{Fields: fields}
	}

	settings, err := n.prefs.UpdateNotificationPreferences(ctx, userID, prefs)
	if err != nil {
		return nil, err
	}
	return withDefaults(settings.Notifications), nil
}

func withDefaults(stored map[string]bool) map[string]bool {
	out := make(map[string]bool, len(preferenceKeyByChannel))
	for _, k := range PreferenceKeys() {
		enabled, ok := stored[k]
		out[k] = !ok || enabled
	}
	return out
}

// ReminderScheduler nudges learners who have not opened an active course for
// a day. Each enrollment is reminded at most once a day.
type ReminderScheduler struct {
	enrollments *repository.EnrollmentRepo
	courses     *repository.CourseRepo
	notifier    *Notifier
	interval    time.Duration
	stopChan    chan struct{}
}

func NewReminderScheduler(enrollments *repository.EnrollmentRepo, courses *repository.CourseRepo, notifier *Notifier, interval time.Duration) *ReminderScheduler {
	if interval <= 0 {
		interval = notificationPollInterval
	}
	return &ReminderScheduler{
		enrollments: enrollments,
		courses:     courses,
		notifier:    notifier,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

func (s *ReminderScheduler) Start() {
	if s.enrollments == nil || s.notifier == nil {
		return
	}
	go s.loop(s.sendCourseReminders)
	log.Printf("Reminder scheduler started (every %s)", s.interval)
}

func (s *ReminderScheduler) Stop() {
	select {
	case <-s.stopChan:
		return
	default:
		close(s.stopChan)
	}
}

func (s *ReminderScheduler) loop(runFn func(ctx context.Context, now time.Time)) {
	// Run on startup as well as by interval.
	runFn(context.Background(), time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			runFn(context.Background(), time.Now().UTC())
		}
	}
}

func (s *ReminderScheduler) sendCourseReminders(ctx context.Context, now time.Time) {
	active, err := s.enrollments.ListActive(ctx)
	if err != nil {
		log.Printf("course reminders: failed to list enrollments: %v", err)
		return
	}

	for i := range active {
		e := &active[i]

		lastAccess := e.LastAccessedAt
		if now.Sub(reminderReferenceTime(&lastAccess, e.EnrolledAt)) < courseReminderIdleAfter {
			continue
		}
		lastSent := ""
		if e.LastReminderAt != nil {
			lastSent = e.LastReminderAt.UTC().Format(time.RFC3339)
		}
		if !shouldSendByLastSent(lastSent, courseReminderInterval, now) {
			continue
		}

		title := "your course"
		if s.courses != nil {
			if course, err := s.courses.GetByID(ctx, e.CourseID); err == nil {
				title = course.Title
			}
		}

		sent, err := s.notifier.Notify(ctx, e.UserID, models.NotifyCourseReminder, "Keep learning",
			fmt.Sprintf("You are %d%% through %s. Pick up where you left off.", e.Progress, title),
			map[string]string{"course_id": e.CourseID, "enrollment_id": e.ID})
		if err != nil {
			log.Printf("course reminders: failed to notify user %s: %v", e.UserID, err)
			continue
		}
		if sent == nil {
			continue
		}

		e.LastReminderAt = &now
		if err := s.enrollments.Save(ctx, e); err != nil {
			log.Printf("course reminders: failed to persist last reminder for %s: %v", e.ID, err)
		}
	}
}

func shouldSendByLastSent(lastSentRaw string, minInterval time.Duration, now time.Time) bool {
	if lastSentRaw == "" {
		return true
	}

	lastSentAt, err := time.Parse(time.RFC3339, lastSentRaw)
	if err != nil {
		return true
	}

	return now.Sub(lastSentAt) >= minInterval
}

func reminderReferenceTime(lastActivityAt *time.Time, createdAt time.Time) time.Time {
	if lastActivityAt != nil && !lastActivityAt.IsZero() {
		return lastActivityAt.UTC()
	}

	return createdAt.UTC()
}
