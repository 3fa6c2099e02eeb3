// Package persist saves the kernel rule tables to disk, clears them and
// restores them from a saved file.
//
// Saves are single flight: a Save that starts while another save or restore
// holds the Guard fails with ErrAlreadyInProgress instead of waiting. Files
// are only written below the storage root, and existing executables are never
// overwritten.
package persist
