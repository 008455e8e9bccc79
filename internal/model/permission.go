package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionSEBBypass lets a user attempt SEB quizzes from any browser.
	PermissionSEBBypass Permission = "seb:bypass"

	// PermissionSEBManage allows editing a quiz's SEB settings and overrides.
	PermissionSEBManage Permission = "seb:manage"

	// PermissionSEBManageTemplates allows creating and editing SEB templates.
	PermissionSEBManageTemplates Permission = "seb:manage_templates"

	// PermissionSEBSettings allows editing plugin-wide SEB settings.
	PermissionSEBSettings Permission = "seb:settings"

	// PermissionSEBMonitor allows watching the live access-prevented stream.
	PermissionSEBMonitor Permission = "seb:monitor"

	// PermissionSEBBackup allows exporting and restoring SEB settings.
	PermissionSEBBackup Permission = "seb:backup"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionSEBBypass,
	PermissionSEBManage,
	PermissionSEBManageTemplates,
	PermissionSEBSettings,
	PermissionSEBMonitor,
	PermissionSEBBackup,
}

// HasPermission reports whether code is present in granted.
func HasPermission(granted []string, code Permission) bool {
	for _, p := range granted {
		if p == string(code) {
			return true
		}
	}
	return false
}
