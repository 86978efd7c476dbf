// Package github publishes files into a repository through the GitHub
// contents API. Updates are SHA-conditional so a stale local view surfaces
// as a conflict rather than a silent overwrite.
package github
