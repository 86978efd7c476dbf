// Package notionsync reconciles knowledge items against their source Notion
// pages. Change detection hashes the page's title, content, and edit
// timestamp; detected drift updates the item and reference in one
// transaction and schedules regeneration.
package notionsync
