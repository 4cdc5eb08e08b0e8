package permission

import (
	"github.com/viant/warden/model/constraint"
)

// DefaultTable returns built-in classifications for the bundled executors.
func DefaultTable() Table {
	return Table{
		{Kind: "read_file", Permission: Read, Risk: Low},
		{Kind: "list_directory", Permission: Read, Risk: Low},
		{Kind: "open_project", Permission: Execute, Risk: Low},
		{Kind: "write_file", Permission: Write, Risk: Medium, Escalations: []*Escalation{
			{When: constraint.Eq("overwrite", true), Risk: High},
			{When: constraint.Prefix("path", "/etc/"), Risk: Critical},
		}},
		{Kind: "apply_patch", Permission: Write, Risk: Medium},
		{Kind: "delete_file", Permission: Write, Risk: High},
		{Kind: "create_branch", Permission: Write, Risk: Medium},
		{Kind: "delete_branch", Permission: Admin, Risk: High},
		{Kind: "push_branch", Permission: Write, Risk: High, Escalations: []*Escalation{
			{When: constraint.In("branch", "main", "master"), Risk: Critical},
		}},
		{Kind: "remote_exec", Permission: Execute, Risk: High, Escalations: []*Escalation{
			{When: constraint.NotIn("host", "", "localhost", "127.0.0.1", "bash://localhost/"), Risk: Critical},
		}},
		{Kind: "system_config", Permission: Admin, Risk: High},
		{Kind: "security_config", Permission: Root, Risk: Critical},
	}
}
