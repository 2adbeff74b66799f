// Package project stores fermentation projects: which sensor and outlet a
// vessel uses, its target temperature, the last observed temperature, the
// last commanded outlet state and whether control is automatic or manual.
package project
