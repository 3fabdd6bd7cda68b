package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedPathsPolicy(),
		privilegedShellPolicy(),
		insecureDownloadPolicy(),
	}
}

// protectedPathsPolicy refuses removals of the filesystem root, the home
// root and top-level system directories, and removals of relative paths.
func protectedPathsPolicy() Policy {
	return Policy{
		Name:        "protected-paths",
		Description: "Refuses to remove the home root, the filesystem root or system directories",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package bootstrap.policies.paths

import rego.v1

removal_kinds := {"remove", "remove_all"}

system_roots := {"/", "/Applications", "/Library", "/System", "/Users", "/bin", "/etc", "/opt", "/sbin", "/usr", "/var"}

clean(p) := "/" if p == "/"

clean(p) := trim_suffix(p, "/") if p != "/"

deny contains violation if {
	removal_kinds[input.kind]
	system_roots[clean(input.path)]
	violation := {
		"message": sprintf("refusing to remove system path %s", [input.path]),
		"severity": "error",
	}
}

deny contains violation if {
	removal_kinds[input.kind]
	input.home != ""
	clean(input.path) == clean(input.home)
	violation := {
		"message": sprintf("refusing to remove the home root %s", [input.path]),
		"severity": "error",
	}
}

deny contains violation if {
	removal_kinds[input.kind]
	not startswith(input.path, "/")
	violation := {
		"message": sprintf("refusing to remove relative path %q", [input.path]),
		"severity": "error",
	}
}
`,
	}
}

// privilegedShellPolicy blocks handing an arbitrary script to a root shell.
func privilegedShellPolicy() Policy {
	return Policy{
		Name:        "privileged-shell",
		Description: "Blocks sudo invocations of a shell with an inline script",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package bootstrap.policies.privileged

import rego.v1

shells := {"sh", "bash", "zsh", "/bin/sh", "/bin/bash", "/bin/zsh"}

deny contains violation if {
	input.kind == "exec"
	input.command[0] == "sudo"
	some i
	shells[input.command[i]]
	input.command[i + 1] == "-c"
	violation := {
		"message": sprintf("sudo %s -c is not allowed", [input.command[i]]),
		"severity": "error",
	}
}
`,
	}
}

// insecureDownloadPolicy blocks TLS-disabled downloads and warns about
// plain-http ones.
func insecureDownloadPolicy() Policy {
	return Policy{
		Name:        "insecure-download",
		Description: "Rejects curl with certificate checks disabled and flags plain http URLs",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package bootstrap.policies.downloads

import rego.v1

deny contains violation if {
	input.kind == "exec"
	input.command[0] == "curl"
	some arg in input.command
	arg in {"-k", "--insecure"}
	violation := {
		"message": "curl must not disable certificate verification",
		"severity": "error",
	}
}

deny contains violation if {
	input.kind == "exec"
	input.command[0] == "curl"
	some arg in input.command
	startswith(arg, "http://")
	violation := {
		"message": sprintf("download over plain http: %s", [arg]),
		"severity": "warning",
	}
}
`,
	}
}
