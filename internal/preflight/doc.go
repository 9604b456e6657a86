// Package preflight provides readiness checks for the directories and
// programs the native host depends on.
//
// The host runs RunAll at startup and logs failed checks as warnings; a failed
// check never prevents startup because cached artifacts can still be served.
// The CLI "betamode config validate" command renders the same results as a
// table.
package preflight
