// Package executor bridges approved operation requests with the action
// services that carry them out. A Registry maps operation kinds onto
// (service, method) pairs, converts request parameters into the method's typed
// input and summarizes the typed output into a Result.
package executor
