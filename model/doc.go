// Package model contains the in-memory representation of operation requests,
// approval rules, permission levels and parameter constraints used by the
// warden engine.
//
// Sub-packages are data only; behaviour that needs storage, time or I/O lives
// under service/.
package model
