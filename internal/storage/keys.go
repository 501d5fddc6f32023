package storage

// Well-known setting keys.
const (
	KeyLastSyncAt         = "lastSyncAt"
	KeySyncedWith         = "syncedWith"
	KeyMigrationCompleted = "migration_completed"
	KeyRemoteConfig       = "remote_config"
	KeyS3Config           = "s3_config"
	KeyGoogleClientID     = "google_client_id"
	KeyOneDriveClientID   = "onedrive_client_id"
	KeyMotivationDate     = "motivationDate"
	KeyTodayMotivation    = "todayMotivation"
)

// TokenKey is the setting key holding the cached OAuth token of a provider.
func TokenKey(provider string) string {
	return "oauth_token_" + provider
}
