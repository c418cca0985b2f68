// Package general holds importers that are not tied to an external survey:
// curated internal events and the duplicate merger that runs last.
package general
