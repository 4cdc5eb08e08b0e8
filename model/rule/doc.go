// Package rule implements deterministic auto-approval rules. Evaluation is a
// pure function of the request, the rule list and the evaluation time.
package rule
