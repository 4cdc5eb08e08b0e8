// Package request defines operation requests, their lifecycle statuses and decisions.
package request
