// Package notion fetches page content from the Notion REST API and flattens
// block children into plain text for the sync engine.
package notion
