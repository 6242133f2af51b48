// Package domain holds the data model shared by the sync components: credentials,
// directory tasks, per-file transfer and reconcile outcomes, and the error kinds
// every component maps its failures into.
package domain
