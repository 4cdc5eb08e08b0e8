// Package permission defines ordered permission and risk levels and the
// classification table that derives them from an operation kind and its
// parameters.
package permission
