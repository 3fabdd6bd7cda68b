// Package policy guards gateway effects with Open Policy Agent rules.
//
// Every policy is a Rego module that defines a `deny` set in its package.
// The engine evaluates each enabled policy with the gateway request as
// input:
//
//	{
//	  "kind":    "exec" | "write" | "append" | "mkdir" | "symlink" | "remove" | "remove_all" | "copy",
//	  "mode":    "apply" | "preview",
//	  "command": ["brew", "install", "git"],
//	  "path":    "/Users/me/.zshrc",
//	  "target":  "/Users/me/.dotfiles/zshrc",
//	  "home":    "/Users/me"
//	}
//
// Deny members are strings or objects with "message" and "severity". An
// error-severity member blocks the effect; a warning is logged.
//
// Built-in policies refuse removals of system roots and the home root,
// sudo invocations of an inline shell script and curl with certificate
// checks disabled. Extra policies are loaded from the files and directories
// listed under settings.policies:
//
//	package custom.keep
//
//	import rego.v1
//
//	deny contains "the dotfiles checkout is kept" if {
//		input.kind == "remove_all"
//		endswith(input.path, "/.dotfiles")
//	}
package policy
