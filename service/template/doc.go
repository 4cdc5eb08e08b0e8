// Package template renders approval messages and reports from ${name} and
// ${a.b} references. Rendering is a pure function of the template and its
// context.
package template
