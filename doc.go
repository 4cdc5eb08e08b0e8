// Package warden gates agentic operations behind human confirmation.
//
// An operation request is classified by risk and required permission,
// auto-approved by the first matching rule or held pending for a human
// decision, executed exactly once when approved, and recorded step by step in
// a hash-chained audit trail. Pending requests expire after a risk dependent
// time-to-live.
//
// The root package assembles the approval engine from a Config:
//
//	srv, _ := warden.New(ctx, warden.WithConfig(config))
//	_, _ = srv.Start(ctx)
//	engine := srv.Approval()
//	req, _ := engine.Submit(ctx, "write_file", request.NewParameters("path", "notes.txt", "content", "hi"), "agent")
//	req, _ = engine.Decide(ctx, req.ID, request.VerdictApprove, "alice", "looks fine")
//
// See service/approval for the engine and cmd/warden for the command line.
package warden
