// Package approval implements the approval workflow engine. Submitted
// operations are classified, matched against auto-approval rules and either
// approved on the spot or held pending a human decision until they expire.
// Approved operations run exactly once through an Executor and every state
// change is written to the audit log before the request table.
package approval
