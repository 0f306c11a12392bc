// Package generate turns a brief into a set of web application files by
// calling a code-generation model, and validates what comes back.
package generate
