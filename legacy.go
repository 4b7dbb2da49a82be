package texttemplar

import "regexp"

// Legacy percent syntax: %NAME% is the scalar placeholder form of the old
// engine. The rewrite is a pure text pre-pass; the parser only ever sees
// TMPL_VAR syntax.

var rxLegacyVar = regexp.MustCompile(`%(\w+)%`)

// ExpandLegacyVars rewrites every %NAME% occurrence into
// <TMPL_VAR NAME=NAME>. Text without percent pairs passes through
// unchanged.
func ExpandLegacyVars(s string) string {
	return rxLegacyVar.ReplaceAllString(s, "<TMPL_VAR NAME=$1>")
}
