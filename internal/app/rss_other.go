//go:build !unix

package app

func peakRSS() uint64 { return 0 }
