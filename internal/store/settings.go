package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Settings are the runtime-mutable knobs: notification channel, per-type
// trigger flags, and thresholds. Loaded per operation; latest write wins.
type Settings struct {
	NotifyEnabled   bool   `json:"notify_enabled"`
	NotifyEndpoint  string `json:"notify_endpoint"`
	NotifyAPIKey    string `json:"notify_api_key"`
	NotifySender    string `json:"notify_sender"`
	NotifyRecipient string `json:"notify_recipient"`

	DebounceMinutes int `json:"debounce_minutes"`

	TriggerDown                 bool `json:"trigger_down"`
	TriggerBackOnline           bool `json:"trigger_back_online"`
	TriggerAccessDenied         bool `json:"trigger_access_denied"`
	TriggerRESTError            bool `json:"trigger_rest_error"`
	TriggerRESTRecovered        bool `json:"trigger_rest_recovered"`
	TriggerContentLow           bool `json:"trigger_content_low"`
	TriggerRegistrationExpiring bool `json:"trigger_registration_expiring"`

	RegistrationWarnDays int  `json:"registration_warn_days"`
	ContentLowThreshold  int  `json:"content_low_threshold"`
	UseBackupChecker     bool `json:"use_backup_checker"`
}

// DefaultSettings returns the settings used before any save.
func DefaultSettings() Settings {
	return Settings{
		DebounceMinutes:             2,
		TriggerDown:                 true,
		TriggerBackOnline:           true,
		TriggerContentLow:           true,
		TriggerRegistrationExpiring: true,
		RegistrationWarnDays:        90,
		ContentLowThreshold:         5,
		UseBackupChecker:            true,
	}
}

// GetSettings loads the settings row, falling back to defaults when none
// has been saved yet.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var st Settings
	var enabled, down, backOnline, accessDenied, restErr, restOK, contentLow, regExp, useBackup int
	err := s.db.QueryRowContext(ctx, `
		SELECT notify_enabled, notify_endpoint, notify_api_key, notify_sender, notify_recipient,
			debounce_minutes, trigger_down, trigger_back_online, trigger_access_denied,
			trigger_rest_error, trigger_rest_recovered, trigger_content_low,
			trigger_registration_expiring, registration_warn_days, content_low_threshold,
			use_backup_checker
		FROM settings WHERE id = 1`,
	).Scan(
		&enabled, &st.NotifyEndpoint, &st.NotifyAPIKey, &st.NotifySender, &st.NotifyRecipient,
		&st.DebounceMinutes, &down, &backOnline, &accessDenied,
		&restErr, &restOK, &contentLow,
		&regExp, &st.RegistrationWarnDays, &st.ContentLowThreshold,
		&useBackup,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("get settings: %w", err)
	}
	st.NotifyEnabled = enabled != 0
	st.TriggerDown = down != 0
	st.TriggerBackOnline = backOnline != 0
	st.TriggerAccessDenied = accessDenied != 0
	st.TriggerRESTError = restErr != 0
	st.TriggerRESTRecovered = restOK != 0
	st.TriggerContentLow = contentLow != 0
	st.TriggerRegistrationExpiring = regExp != 0
	st.UseBackupChecker = useBackup != 0
	return st, nil
}

// SaveSettings upserts the single settings row.
func (s *Store) SaveSettings(ctx context.Context, st Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (
			id, notify_enabled, notify_endpoint, notify_api_key, notify_sender, notify_recipient,
			debounce_minutes, trigger_down, trigger_back_online, trigger_access_denied,
			trigger_rest_error, trigger_rest_recovered, trigger_content_low,
			trigger_registration_expiring, registration_warn_days, content_low_threshold,
			use_backup_checker
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			notify_enabled = excluded.notify_enabled,
			notify_endpoint = excluded.notify_endpoint,
			notify_api_key = excluded.notify_api_key,
			notify_sender = excluded.notify_sender,
			notify_recipient = excluded.notify_recipient,
			debounce_minutes = excluded.debounce_minutes,
			trigger_down = excluded.trigger_down,
			trigger_back_online = excluded.trigger_back_online,
			trigger_access_denied = excluded.trigger_access_denied,
			trigger_rest_error = excluded.trigger_rest_error,
			trigger_rest_recovered = excluded.trigger_rest_recovered,
			trigger_content_low = excluded.trigger_content_low,
			trigger_registration_expiring = excluded.trigger_registration_expiring,
			registration_warn_days = excluded.registration_warn_days,
			content_low_threshold = excluded.content_low_threshold,
			use_backup_checker = excluded.use_backup_checker`,
		boolInt(st.NotifyEnabled), st.NotifyEndpoint, st.NotifyAPIKey, st.NotifySender, st.NotifyRecipient,
		st.DebounceMinutes, boolInt(st.TriggerDown), boolInt(st.TriggerBackOnline), boolInt(st.TriggerAccessDenied),
		boolInt(st.TriggerRESTError), boolInt(st.TriggerRESTRecovered), boolInt(st.TriggerContentLow),
		boolInt(st.TriggerRegistrationExpiring), st.RegistrationWarnDays, st.ContentLowThreshold,
		boolInt(st.UseBackupChecker),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
