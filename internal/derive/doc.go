// Package derive runs the final sweep over every journaled event: it
// sanitizes values, derives summary quantities and collects the
// bibliographic-author and extinction side tables.
//
// Events are visited one at a time and journaled and dropped from memory
// right after, so the whole catalog never needs to be resident.
package derive
