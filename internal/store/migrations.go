package store

import "database/sql"

func migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create domains, check_results, settings tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS domains (
						id TEXT PRIMARY KEY,
						label TEXT NOT NULL,
						url TEXT NOT NULL,
						rest_base TEXT NOT NULL DEFAULT '',
						cms_user TEXT NOT NULL DEFAULT '',
						cms_secret TEXT NOT NULL DEFAULT '',
						search_query TEXT NOT NULL DEFAULT '',
						check_interval_minutes INTEGER NOT NULL DEFAULT 30,
						rest_interval_minutes INTEGER NOT NULL DEFAULT 600,
						enabled INTEGER NOT NULL DEFAULT 1,
						whois_expiry DATETIME,
						nameservers TEXT,
						last_general_check_at DATETIME,
						last_rest_check_at DATETIME,
						created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,

					`CREATE TABLE IF NOT EXISTS check_results (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
						checked_at DATETIME NOT NULL,
						online INTEGER NOT NULL DEFAULT 0,
						homepage_status INTEGER,
						rest_status INTEGER,
						response_time_ms INTEGER,
						posts_count INTEGER,
						future_count INTEGER,
						last_scheduled_post DATETIME,
						search_index_count INTEGER,
						bot_verification INTEGER NOT NULL DEFAULT 0,
						used_backup INTEGER NOT NULL DEFAULT 0,
						rest_fallback INTEGER NOT NULL DEFAULT 0,
						error_message TEXT NOT NULL DEFAULT '',
						raw_error_body TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_results_domain_time ON check_results(domain_id, checked_at DESC)`,

					`CREATE TABLE IF NOT EXISTS settings (
						id INTEGER PRIMARY KEY CHECK (id = 1),
						notify_enabled INTEGER NOT NULL DEFAULT 0,
						notify_endpoint TEXT NOT NULL DEFAULT '',
						notify_api_key TEXT NOT NULL DEFAULT '',
						notify_sender TEXT NOT NULL DEFAULT '',
						notify_recipient TEXT NOT NULL DEFAULT '',
						debounce_minutes INTEGER NOT NULL DEFAULT 2,
						trigger_down INTEGER NOT NULL DEFAULT 1,
						trigger_back_online INTEGER NOT NULL DEFAULT 1,
						trigger_access_denied INTEGER NOT NULL DEFAULT 0,
						trigger_rest_error INTEGER NOT NULL DEFAULT 0,
						trigger_rest_recovered INTEGER NOT NULL DEFAULT 0,
						trigger_content_low INTEGER NOT NULL DEFAULT 1,
						trigger_registration_expiring INTEGER NOT NULL DEFAULT 1,
						registration_warn_days INTEGER NOT NULL DEFAULT 90,
						content_low_threshold INTEGER NOT NULL DEFAULT 5,
						use_backup_checker INTEGER NOT NULL DEFAULT 1
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
