package rbac

// Default role policy for the exam core.
var RolePermissions = map[string][]string{
	"student": {
		"exam:view",
		"session:start",
		"session:answer",
		"session:submit",
		"session:view-own",
	},
	"teacher": {
		"exam:create",
		"exam:publish",
		"exam:view",
		"exam:view-full",
		"session:view-all",
		"grading:*",
	},
	"admin": {
		"*", // everything
	},
}
