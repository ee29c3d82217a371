package handler

// MigrateResponse is returned when the migration completed.
type MigrateResponse struct {
	AuthenticatedGroupID string `json:"authenticated_group_id"`
	Name                 string `json:"name"`
	DevicesMigrated      int    `json:"devices_migrated_count"`
	MigrationID          string `json:"migration_id"`
}

// AlreadyMigratedResponse is the 409 body for a repeated migration.
type AlreadyMigratedResponse struct {
	Error                string `json:"error"`
	ErrorDescription     string `json:"error_description"`
	AuthenticatedGroupID string `json:"authenticated_group_id"`
	MigrationID          string `json:"migration_id"`
	Name                 string `json:"name,omitempty"`
}

// ProcessingResponse is the 202 body sent when the migration outlives the
// progress threshold.
type ProcessingResponse struct {
	Status              string `json:"status"`
	RegistrationGroupID string `json:"registration_group_id"`
}
