// Package duplicates groups catalog items whose visual hashes match or lie
// within a Hamming distance of each other. Grouping only reports; nothing
// here removes files.
package duplicates
