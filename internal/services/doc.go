// Package services holds the error taxonomy shared by the collaborator
// clients and the pipeline components that consume them.
package services
