// Package ucb imports photometry and spectra from the UC Berkeley
// Filippenko Group's Supernova Database (SNDB).
//
// Both importers read a JSON index of public records, then one data file per
// record. Data files are cached and reused when the task runs in archive
// mode.
package ucb
