package policy

// DefaultAutonomy is the built-in autonomy table. INTERN and SPECIALIST
// need approval for YELLOW work; LEAD and CEO do not. RED always
// requires approval regardless of role (enforced in EvaluateLegacy).
func DefaultAutonomy() map[Role]AutonomyRule {
	return map[Role]AutonomyRule{
		RoleIntern:     {Role: RoleIntern, RequiresApprovalForYellow: true},
		RoleSpecialist: {Role: RoleSpecialist, RequiresApprovalForYellow: true},
		RoleLead:       {Role: RoleLead, RequiresApprovalForYellow: false},
		RoleCEO:        {Role: RoleCEO, RequiresApprovalForYellow: false},
	}
}

// AutonomyFor returns the rule for a role, defaulting unknown roles to
// the INTERN rule (most restrictive).
func AutonomyFor(role Role) AutonomyRule {
	if rule, ok := DefaultAutonomy()[role]; ok {
		return rule
	}
	return AutonomyRule{Role: RoleIntern, RequiresApprovalForYellow: true}
}

// DefaultAllowlists is the built-in legacy allow/block rule set.
func DefaultAllowlists() Allowlists {
	return Allowlists{
		ShellBlocklist: []string{
			"rm -rf",
			"sudo ",
			"mkfs",
			"dd if=",
			":(){",
			"> /dev/",
			"chmod 777",
			"curl | sh",
			"wget | sh",
		},
		ShellAllowlist: []string{
			"ls", "cat", "grep", "find", "head", "tail", "wc",
			"go", "npm", "pnpm", "yarn", "python", "pytest", "pip",
			"git status", "git log", "git diff", "git add", "git commit",
			"git checkout", "git branch", "make", "cargo",
		},
		HostAllowlist: []string{
			"github.com",
			"api.github.com",
			"registry.npmjs.org",
			"proxy.golang.org",
			"pypi.org",
			"files.pythonhosted.org",
			"crates.io",
		},
		FileWriteBlock: []string{
			".env",
			"**/.env",
			"**/*.pem",
			"**/*.key",
			"**/id_rsa*",
			"**/.ssh/**",
			"**/secrets/**",
			"**/credentials*",
		},
	}
}
