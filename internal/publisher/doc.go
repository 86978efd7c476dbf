// Package publisher renders articles as front-matter Markdown documents and
// commits them to the article repository with SHA-conditional updates.
package publisher
