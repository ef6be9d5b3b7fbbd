package store

// SystemSetting is an instance-level key/value setting. The migrator keeps
// the schema version here; operators may add their own rows.
type SystemSetting struct {
	Name        string
	Value       string
	Description string
}

// SystemSettingSchemaVersion is the setting name under which the migrator
// records the applied schema version.
const SystemSettingSchemaVersion = "schema_version"

// FindSystemSetting is the find condition for system settings.
type FindSystemSetting struct {
	Name *string
}
