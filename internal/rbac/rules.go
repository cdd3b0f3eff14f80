package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"test:view",
		"session:run",
		"result:view-own",
		"stats:view-own",
	},
	"teacher": {
		"test:view",
		"test:create",
		"result:view-all",
	},
	"admin": {
		"*", // everything
	},
}
